package auth

import (
	"fmt"
	"sync"
)

// Authenticator checks operator credentials.
type Authenticator struct {
	operators map[string]Operator

	// dummyHash is verified for unknown usernames so both failure paths
	// cost the same.
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthenticator validates the operator list.
func NewAuthenticator(operators []Operator) (*Authenticator, error) {
	a := &Authenticator{operators: make(map[string]Operator, len(operators))}
	for _, op := range operators {
		if op.Username == "" || op.PasswordHash == "" {
			return nil, fmt.Errorf("%w: username and password hash are required", ErrInvalidOperator)
		}
		if !IsValidRole(op.Role) {
			return nil, fmt.Errorf("%w: %s has unknown role %q", ErrInvalidOperator, op.Username, op.Role)
		}
		if _, dup := a.operators[op.Username]; dup {
			return nil, fmt.Errorf("%w: duplicate username %q", ErrInvalidOperator, op.Username)
		}
		if _, err := decodePHC(op.PasswordHash); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidOperator, op.Username, err)
		}
		a.operators[op.Username] = op
	}
	return a, nil
}

// Authenticate returns the operator for valid credentials and
// ErrInvalidCredentials otherwise, without saying which part was wrong.
func (a *Authenticator) Authenticate(username, password string) (Operator, error) {
	op, ok := a.operators[username]
	if !ok {
		_, _ = VerifyPassword(password, a.dummy()) //nolint:errcheck // timing only
		return Operator{}, ErrInvalidCredentials
	}

	match, err := VerifyPassword(password, op.PasswordHash)
	if err != nil || !match {
		return Operator{}, ErrInvalidCredentials
	}
	return op, nil
}

// Count returns the number of configured operators.
func (a *Authenticator) Count() int {
	return len(a.operators)
}

func (a *Authenticator) dummy() string {
	a.dummyOnce.Do(func() {
		a.dummyHash, _ = HashPassword("handsfree-dummy") //nolint:errcheck // failure leaves an unparseable hash, still a failed login
	})
	return a.dummyHash
}
