package users

import (
	"strconv"
	"strings"
	"time"
)

// Account is a registered user together with the bcrypt hash of their password.
type Account struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Username     string    `gorm:"column:username;size:190;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:100;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing user accounts.
func (Account) TableName() string {
	return "users"
}

// UserID is the string form of an account id, as carried in token subjects.
func (a Account) UserID() string {
	return strconv.FormatUint(a.ID, 10)
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
