package models

import "time"

// CurrentSessionID is the id of the singleton offline session.
const CurrentSessionID = "current"

// OfflineSession proves a past online login. SessionToken is AES-GCM
// ciphertext sealed with the device key.
type OfflineSession struct {
	ID           string
	UserID       string
	Username     string
	Email        string
	Timezone     string
	SessionToken []byte
	Nonce        []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Complete reports whether every required field is present.
func (s *OfflineSession) Complete() bool {
	return s.UserID != "" && s.Username != "" && len(s.SessionToken) > 0 &&
		len(s.Nonce) > 0 && !s.ExpiresAt.IsZero()
}

// User returns the identity part of s.
func (s *OfflineSession) User() OfflineUser {
	return OfflineUser{ID: s.UserID, Username: s.Username, Email: s.Email, Timezone: s.Timezone}
}

// OfflineUser is the read-only identity served while offline.
type OfflineUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Timezone string `json:"timezone"`
}

// UserPatch updates display fields of the session; nil fields are kept.
type UserPatch struct {
	Username *string
	Email    *string
	Timezone *string
}
