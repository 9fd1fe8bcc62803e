package types

// UserRole represents the roles known to the booking core
type UserRole string

const (
	RolePatient UserRole = "PATIENT"
	RoleDoctor  UserRole = "DOCTOR"
	RoleAdmin   UserRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RolePatient || r == RoleDoctor || r == RoleAdmin
}

// Actor identifies the caller of a core operation. It is supplied by the
// identity provider and passed explicitly into every engine call.
type Actor struct {
	ID   string   `json:"id"`
	Role UserRole `json:"role"`
}

// IsDoctor reports whether the actor acts as a doctor.
func (a Actor) IsDoctor() bool {
	return a.Role == RoleDoctor
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
