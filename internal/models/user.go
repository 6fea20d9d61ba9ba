package models

import (
	"time"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// MFA enrollment state. Secret is the base32-encoded TOTP secret;
	// it is set at enrollment and only replaced, never edited.
	MFAEnabled      bool
	MFASecret       *string
	BackupCodes     []string
	UsedBackupCodes []string
}

// BackupCodeUsed reports whether the given code has already been consumed.
func (u *User) BackupCodeUsed(code string) bool {
	for _, used := range u.UsedBackupCodes {
		if used == code {
			return true
		}
	}
	return false
}
