package model

// Roles carried in the access token.
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// Actor is the authenticated caller of an operation. Accounts live with
// the identity provider; this service only sees the verified token claims.
type Actor struct {
	UserID uint64
	Role   string
}

// IsAdmin reports whether the actor may act on other users' bookings.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
