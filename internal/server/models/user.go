package models

import "time"

// User is a directory principal. PasswordFile holds the opaque credential
// derived by the password exchange at registration; nil means the user has
// not set a password yet.
type User struct {
	ID           string
	UserName     string
	PasswordFile []byte
	CreatedAt    time.Time
}
