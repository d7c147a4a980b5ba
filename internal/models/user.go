package models

import "time"

// User is the login identity checked by the auth service
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	RoleID       int64
	IsActive     bool
	CreatedAt    time.Time
}
