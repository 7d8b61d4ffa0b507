package user

import (
	"fmt"
	"time"
)

// Role is a closed set: only this package can implement it, so every role
// must declare its capability set.
type Role interface {
	fmt.Stringer
	Permissions() []Permission
	// RequiresLoginCode reports whether password login must be completed
	// with an admin-issued one-time code.
	RequiresLoginCode() bool
	sealed()
}

type adminRole struct{}
type formateurRole struct{}
type apprenantRole struct{}

var (
	Admin     Role = adminRole{}
	Formateur Role = formateurRole{}
	Apprenant Role = apprenantRole{}
)

// AllRoles lists every role.
var AllRoles = []Role{Admin, Formateur, Apprenant}

func (adminRole) String() string     { return "admin" }
func (formateurRole) String() string { return "formateur" }
func (apprenantRole) String() string { return "apprenant" }

func (adminRole) RequiresLoginCode() bool     { return false }
func (formateurRole) RequiresLoginCode() bool { return true }
func (apprenantRole) RequiresLoginCode() bool { return false }

func (adminRole) sealed()     {}
func (formateurRole) sealed() {}
func (apprenantRole) sealed() {}

// ParseRole maps a stored or claimed role name to its variant.
func ParseRole(name string) (Role, error) {
	for _, r := range AllRoles {
		if r.String() == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRole, name)
}

type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash *string
	Role         Role
	Validated    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin checks if user is an administrator
func (u *User) IsAdmin() bool {
	return u.Role == Admin
}

// Can checks the user's role for a permission.
func (u *User) Can(permission Permission) bool {
	return u.Role != nil && HasPermission(u.Role, permission)
}
