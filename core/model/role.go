package model

// Role identifies a USEF market participant role.
type Role int

const (
	RoleBRP Role = iota // balance-responsible party
	RoleAGR             // aggregator
	RoleDSO             // distribution system operator
	RoleMDC             // meter-data company
	RoleCRO             // common-reference operator
)

// String returns the USEF wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleBRP:
		return "BRP"
	case RoleAGR:
		return "AGR"
	case RoleDSO:
		return "DSO"
	case RoleMDC:
		return "MDC"
	case RoleCRO:
		return "CRO"
	default:
		return "unknown"
	}
}

// ParseRole resolves a wire name back to a Role.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "BRP":
		return RoleBRP, true
	case "AGR":
		return RoleAGR, true
	case "DSO":
		return RoleDSO, true
	case "MDC":
		return RoleMDC, true
	case "CRO":
		return RoleCRO, true
	}
	return 0, false
}

// Participant addresses a single role instance on the network.
type Participant struct {
	Role   Role
	Domain string
}

func (p Participant) String() string {
	return p.Role.String() + "@" + p.Domain
}
