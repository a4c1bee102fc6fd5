package enums

import "fmt"

// ActorRole is the closed set of parties that can act on the workflow.
type ActorRole string

const (
	ActorRoleFarmer    ActorRole = "farmer"
	ActorRolePurchaser ActorRole = "purchaser"
	ActorRoleAdmin     ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	ActorRoleFarmer,
	ActorRolePurchaser,
	ActorRoleAdmin,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsCounterparty reports whether the role signs and fulfils contracts.
func (r ActorRole) IsCounterparty() bool {
	return r == ActorRoleFarmer || r == ActorRolePurchaser
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
