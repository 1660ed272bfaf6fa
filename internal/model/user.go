package model

import "time"

// Roles stored in users.role and carried in the access token.
const (
	RoleCustomer  = "CUSTOMER"
	RoleOrganizer = "ORGANIZER"
)

// User represents an application user record as stored in the `users`
// table.  StripeCustomerID is filled the first time an organizer
// subscribes to a plan.
type User struct {
	ID               uint64
	Email            string
	Name             string
	PasswordHash     string
	Role             string
	IsActive         bool
	StripeCustomerID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
