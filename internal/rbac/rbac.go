package rbac

import "strings"

type Role string
type Action string

const (
	RoleSharer   Role = "SHARER"
	RoleExecutor Role = "EXECUTOR"
	RoleListener Role = "LISTENER"
)

const (
	ActionRead   Action = "read"
	ActionManage Action = "manage"
	ActionOwn    Action = "own"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleSharer:
		return true
	case RoleExecutor:
		return action == ActionRead || action == ActionManage
	case RoleListener:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize upper-cases a role name. Unknown names come back empty.
func Normalize(role string) Role {
	switch r := Role(strings.ToUpper(strings.TrimSpace(role))); r {
	case RoleSharer, RoleExecutor, RoleListener:
		return r
	default:
		return ""
	}
}

// Invitable reports whether an invitation may grant the role.
func Invitable(role Role) bool {
	return role == RoleListener || role == RoleExecutor
}
