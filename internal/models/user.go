package models

import "time"

// User владелец журнала
type User struct {
	ID          string    `json:"id" db:"id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	TokenHash   string    `json:"-" db:"token_hash"` // bcrypt хеш API токена
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
