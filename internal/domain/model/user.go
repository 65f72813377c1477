package model

import (
	"time"
)

// PasswordMaxLength is a byte limit: bcrypt ignores input past 72 bytes and
// x/crypto rejects it outright. The validate tags on the request types
// count characters, so this check runs separately.
const PasswordMaxLength = 72

type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"` // Not exposed
	CreatedAt      time.Time `json:"created_at"`
}
