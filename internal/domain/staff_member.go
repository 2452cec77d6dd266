package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAgent StaffRole = "AGENT"
	StaffRoleAdmin StaffRole = "ADMIN"
)

// StaffMember models a helpdesk operator. Only ADMIN accounts may use the
// dashboard.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin reports whether the account may perform admin-scoped operations.
func (s *StaffMember) IsAdmin() bool {
	return s != nil && s.Active && s.Role == StaffRoleAdmin
}
