package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// NewUser is the input for creating an account.
type NewUser struct {
	Username string `form:"username" validate:"required,max=150"`
	Email    string `form:"email" validate:"omitempty,email,max=254"`
	Password string `form:"password" validate:"required,min=8"`
	IsStaff  bool   `form:"is_staff"`
}
