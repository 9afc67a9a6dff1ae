package models

import "time"

// PendingAuthRequest represents an in-flight, unconfirmed login attempt.
// At most one live request exists per (email, origin) pair; re-issuing
// replaces the previous one.
type PendingAuthRequest struct {
	Email     string    `json:"email"`
	Origin    string    `json:"origin"`
	Token     string    `json:"token"`
	Endpoint  string    `json:"endpoint"` // full RP callback URI
	CreatedAt time.Time `json:"created_at"`
}

// AuthResponse is returned from POST /auth after a confirmation link has
// been handed to the delivery sink.
type AuthResponse struct {
	Email string `json:"email"`
	Where string `json:"where"` // hostname the user is signing in to

	// Link is only populated in development mode, where no real
	// out-of-band delivery channel exists.
	Link string `json:"link,omitempty"`
}

// ConfirmResponse is returned from GET /confirm on successful redemption.
// The browser is expected to deliver Assertion to Endpoint.
type ConfirmResponse struct {
	Where     string `json:"where"`
	Endpoint  string `json:"endpoint"`
	Assertion string `json:"assertion"`
}

// AuthbackRequest is the body of POST /authback at the relying party.
type AuthbackRequest struct {
	Assertion string `json:"assertion"`
}

// AuthbackResponse is returned when an assertion was accepted.
type AuthbackResponse struct {
	Email string `json:"email"`
}

// ErrorResponse is the JSON error body used by both servers.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}
