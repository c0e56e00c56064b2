package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermHeadsetRead, true},
		{RoleViewer, PermHeadsetAdmin, false},
		{RoleAdmin, PermHeadsetRead, true},
		{RoleAdmin, PermHeadsetAdmin, true},
		{Role("guest"), PermHeadsetRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestPermissionsForRole_ReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RoleAdmin)
	if len(perms) != 2 {
		t.Fatalf("admin permissions = %v", perms)
	}
	perms[0] = "mutated"
	if !HasPermission(RoleAdmin, PermHeadsetRead) {
		t.Error("mutating the returned slice changed the role table")
	}
	if PermissionsForRole("guest") != nil {
		t.Error("unknown role should have no permissions")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	if IsValidRole("") || IsValidRole("owner") {
		t.Error("unexpected valid role")
	}
}
