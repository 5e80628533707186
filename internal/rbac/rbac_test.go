package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "member read", role: RoleMember, action: ActionRead, allow: true},
		{name: "member invite", role: RoleMember, action: ActionInviteMember, allow: false},
		{name: "admin invite", role: RoleAdmin, action: ActionInviteMember, allow: true},
		{name: "admin remove", role: RoleAdmin, action: ActionRemoveMember, allow: true},
		{name: "admin change role", role: RoleAdmin, action: ActionChangeRole, allow: false},
		{name: "admin transfer", role: RoleAdmin, action: ActionTransferOwner, allow: false},
		{name: "owner transfer", role: RoleOwner, action: ActionTransferOwner, allow: true},
		{name: "owner delete org", role: RoleOwner, action: ActionDeleteOrg, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("owner"); got != RoleOwner {
		t.Fatalf("Normalize(owner) = %q", got)
	}
	if got := Normalize("superuser"); got != RoleMember {
		t.Fatalf("Normalize(superuser) = %q, want member", got)
	}
}
