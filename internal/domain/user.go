package domain

import "time"

type Role string

const (
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleLevel = map[Role]int{
	RoleOperator: 1,
	RoleAdmin:    2,
}

// HasPermission reports whether r grants at least the access of required.
func (r Role) HasPermission(required Role) bool {
	return roleLevel[r] >= roleLevel[required] && roleLevel[r] > 0
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	_, ok := roleLevel[r]
	return ok
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
