package domain

import "time"

// User is an account that can register and log in. Contact is the login
// identifier (phone or messenger handle) and must be unique. Ticket replies
// reference users by display name only; there is no foreign key from a
// reply back to an account.
type User struct {
	ID           string
	Username     string
	Contact      string
	PasswordHash string
	IP           string
	IPLocation   string
	CreatedAt    time.Time
}
