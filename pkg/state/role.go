package state

// Role is the coarse role claim carried by an identity. Unknown values
// from a token are kept verbatim.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var BuiltInRoles = map[string]Role{
	"user":  RoleUser,
	"admin": RoleAdmin,
}

func (r Role) IsBuiltIn() bool {
	_, ok := BuiltInRoles[string(r)]
	return ok
}

// ParseRole maps an empty claim to RoleUser.
func ParseRole(s string) Role {
	if s == "" {
		return RoleUser
	}
	if r, ok := BuiltInRoles[s]; ok {
		return r
	}
	return Role(s)
}
