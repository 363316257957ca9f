package model

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStaff   Role = "staff"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID     string
	Role       Role
	ChiefAdmin bool
}

func (p Principal) IsAdmin() bool   { return p.Role == RoleAdmin }
func (p Principal) IsStaff() bool   { return p.Role == RoleStaff }
func (p Principal) IsStudent() bool { return p.Role == RoleStudent }
