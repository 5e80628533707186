package rbac

// Organization roles. Exactly one member holds RoleOwner; ownership moves via
// an explicit transfer, never by role edits.
type Role string
type Action string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

const (
	ActionRead          Action = "read"
	ActionInviteMember  Action = "invite_member"
	ActionRemoveMember  Action = "remove_member"
	ActionChangeRole    Action = "change_role"
	ActionTransferOwner Action = "transfer_owner"
	ActionDeleteOrg     Action = "delete_org"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleAdmin:
		return action == ActionRead || action == ActionInviteMember || action == ActionRemoveMember
	case RoleMember:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleAdmin, RoleOwner:
		return Role(role)
	default:
		return RoleMember
	}
}
