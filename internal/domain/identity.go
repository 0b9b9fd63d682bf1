package domain

// Role identifiers as issued by the platform's user directory.
const (
	RoleSuperAdmin       = "super_admin"
	RoleAdmin            = "admin"
	RolePrincipal        = "principal"
	RoleDepartmentHead   = "department_head"
	RoleCounselor        = "counselor"
	RoleTeacher          = "teacher"
	RoleStudent          = "student"
	RoleParent           = "parent"
	RoleAccountant       = "accountant"
	RoleLibrarian        = "librarian"
	RoleDriver           = "driver"
	RoleSupport          = "support"
	RoleTransportManager = "transport_manager"
	RoleHostelWarden     = "hostel_warden"
)

// staffRoles are the roles allowed to send bulk notifications.
var staffRoles = map[string]struct{}{
	RoleSuperAdmin:       {},
	RoleAdmin:            {},
	RolePrincipal:        {},
	RoleDepartmentHead:   {},
	RoleCounselor:        {},
	RoleTeacher:          {},
	RoleAccountant:       {},
	RoleLibrarian:        {},
	RoleDriver:           {},
	RoleSupport:          {},
	RoleTransportManager: {},
	RoleHostelWarden:     {},
}

// Identity is the already-authenticated caller of a connection. It is
// resolved once at handshake by the auth middleware; the communication
// core never validates credentials itself.
type Identity struct {
	UserID      string
	Username    string
	DisplayName string
	Roles       []string
}

// Name returns the best human-readable name for the user.
func (id Identity) Name() string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	return id.Username
}

// HasRole reports whether the identity carries the given role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaff reports whether the identity may broadcast bulk notifications.
func (id Identity) IsStaff() bool {
	for _, r := range id.Roles {
		if _, ok := staffRoles[r]; ok {
			return true
		}
	}
	return false
}
