package dto

import "time"

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Username string `json:"username"`
	Contact  string `json:"contact"`
	Password string `json:"password"`
}

// LoginRequest payload.
type LoginRequest struct {
	Contact  string `json:"contact"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
