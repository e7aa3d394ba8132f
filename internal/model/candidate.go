package model

import "time"

// Candidate is the authenticated end user as reported by the backend.
type Candidate struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Session is the explicit session context handed to services. It is created
// on login and destroyed on logout; nothing reads it from ambient storage.
type Session struct {
	JTI       string    `json:"jti"`
	Token     string    `json:"token"`
	Candidate Candidate `json:"candidate"`
	IssuedAt  time.Time `json:"issued_at"`
}

// LoginRequest is the payload for a candidate login.
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Password string `json:"password" binding:"required,min=1,max=200"`
}
