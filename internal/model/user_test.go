package model

import "testing"

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role, minimum string
		want          bool
	}{
		{RoleAdmin, RoleManager, true},
		{RoleManager, RoleManager, true},
		{RoleManager, RoleAdmin, false},
		{RoleUser, RoleUser, true},
		{RoleUser, RoleManager, false},
		// Unknown roles fail closed.
		{"picker", RoleUser, false},
		{RoleAdmin, "picker", false},
		{"", "", false},
	}

	for _, tt := range tests {
		if got := RoleAtLeast(tt.role, tt.minimum); got != tt.want {
			t.Errorf("RoleAtLeast(%q, %q) = %v, want %v", tt.role, tt.minimum, got, tt.want)
		}
	}
}

func TestActorFor(t *testing.T) {
	tests := []struct {
		role       string
		privileged bool
	}{
		{RoleAdmin, true},
		{RoleManager, true},
		{RoleUser, false},
		{"", false},
	}

	for _, tt := range tests {
		a := ActorFor("u-1", "alice", tt.role)
		if a.ID != "u-1" || a.Name != "alice" {
			t.Errorf("ActorFor(%q) identity = %+v", tt.role, a)
		}
		if a.Privileged != tt.privileged {
			t.Errorf("ActorFor(%q).Privileged = %v, want %v", tt.role, a.Privileged, tt.privileged)
		}
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleAdmin, RoleManager, RoleUser} {
		if !ValidRole(r) {
			t.Errorf("expected %q to be valid", r)
		}
	}
	if ValidRole("Admin") {
		t.Error("roles are case sensitive")
	}
}

func TestValidatePassword(t *testing.T) {
	for pw, wantErr := range map[string]bool{
		"":                 true,
		"1234567":          true,
		"12345678":         false,
		"a-valid-password": false,
	} {
		if err := ValidatePassword(pw); (err != nil) != wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", pw, err, wantErr)
		}
	}
}
