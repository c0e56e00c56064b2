package auth

import (
	"errors"
	"testing"
)

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	return h
}

func TestAuthenticator(t *testing.T) {
	a, err := NewAuthenticator([]Operator{
		{Username: "kit", PasswordHash: mustHash(t, "pa55"), Role: RoleAdmin},
		{Username: "sam", PasswordHash: mustHash(t, "view"), Role: RoleViewer},
	})
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	if a.Count() != 2 {
		t.Errorf("Count() = %d, want 2", a.Count())
	}

	op, err := a.Authenticate("kit", "pa55")
	if err != nil {
		t.Fatalf("Authenticate(kit) error = %v", err)
	}
	if op.Role != RoleAdmin {
		t.Errorf("Role = %q, want admin", op.Role)
	}

	tests := []struct {
		name, user, pass string
	}{
		{"wrong password", "kit", "nope"},
		{"unknown user", "ghost", "pa55"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Authenticate(tt.user, tt.pass); !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("Authenticate() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestNewAuthenticator_Invalid(t *testing.T) {
	hash := mustHash(t, "x")

	tests := []struct {
		name string
		ops  []Operator
	}{
		{"missing username", []Operator{{PasswordHash: hash, Role: RoleAdmin}}},
		{"missing hash", []Operator{{Username: "kit", Role: RoleAdmin}}},
		{"unknown role", []Operator{{Username: "kit", PasswordHash: hash, Role: "root"}}},
		{"malformed hash", []Operator{{Username: "kit", PasswordHash: "plaintext", Role: RoleAdmin}}},
		{"duplicate", []Operator{
			{Username: "kit", PasswordHash: hash, Role: RoleAdmin},
			{Username: "kit", PasswordHash: hash, Role: RoleViewer},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAuthenticator(tt.ops); !errors.Is(err, ErrInvalidOperator) {
				t.Errorf("NewAuthenticator() error = %v, want ErrInvalidOperator", err)
			}
		})
	}
}

func TestNewAuthenticator_Empty(t *testing.T) {
	a, err := NewAuthenticator(nil)
	if err != nil {
		t.Fatalf("NewAuthenticator(nil) error = %v", err)
	}
	if _, err := a.Authenticate("kit", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Authenticate() error = %v", err)
	}
}
