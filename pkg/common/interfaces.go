package common

// Role identifies which side of the mosaicing pipeline a corpus plays
type Role string

const (
	RoleSource Role = "source"
	RoleTarget Role = "target"
	RoleOutput Role = "output"
)

func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSource, RoleTarget, RoleOutput:
		return true
	}
	return false
}
