package domain

import "time"

// User is an account able to join conversations.
// Username is unique and case-sensitive.
type User struct {
	ID           string    `cbor:"id" json:"id"`
	Username     string    `cbor:"username" json:"username"`
	PasswordHash string    `cbor:"password_hash" json:"-"`
	Pseudo       *string   `cbor:"pseudo,omitempty" json:"pseudo,omitempty"`
	Location     *string   `cbor:"location,omitempty" json:"location,omitempty"`
	CreatedAt    time.Time `cbor:"created_at" json:"created_at"`
}

// Session is handed out on login.
type Session struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}
