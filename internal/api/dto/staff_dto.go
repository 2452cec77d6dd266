package dto

import "time"

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// StaffResponse is the public view of a staff account.
type StaffResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AuthResponse carries an issued session token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Staff StaffResponse `json:"staff"`
	Auth  AuthResponse  `json:"auth"`
}
