package domain

import "time"

// Role separates ticket submitters from support staff.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAgent    Role = "AGENT"
)

// User is the domain model for every authenticated actor: customers who submit
// tickets and agents who work them.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAgent reports whether the user acts as support staff.
func (u *User) IsAgent() bool {
	return u != nil && u.Role == RoleAgent
}

// IsCustomer reports whether the user acts as a ticket submitter.
func (u *User) IsCustomer() bool {
	return u != nil && u.Role == RoleCustomer
}
