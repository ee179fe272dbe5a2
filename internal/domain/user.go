package domain

import (
	"strconv"
	"time"
)

// LoginUser is a local account that can answer an identity provider login challenge.
type LoginUser struct {
	ID           int64
	Username     string
	PasswordHash string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subject is the immutable identifier handed to the identity provider.
func (u LoginUser) Subject() string {
	return strconv.FormatInt(u.ID, 10)
}

// IsActive reports whether the account may sign in.
func (u LoginUser) IsActive() bool {
	return u.Status == "" || u.Status == UserStatusActive
}

const UserStatusActive = "ACTIVE"
