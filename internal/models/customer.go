package models

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type Customer struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"not null" json:"name"`
	Email  string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Phone  string `gorm:"not null" json:"phone"`
	OIDCID string `gorm:"uniqueIndex;size:255" json:"-"` // OpenID Connect identifier
	Role   string `gorm:"size:16;not null;default:customer" json:"role"`
}

func (c *Customer) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// ValidRole reports whether role is one of the known customer roles.
func ValidRole(role string) bool {
	return role == RoleCustomer || role == RoleAdmin
}
