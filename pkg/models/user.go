package models

import "time"

// User represents a Telegram user using the bot
type User struct {
	ID                  int64     `json:"id" db:"id"` // Telegram User ID
	Username            string    `json:"username" db:"username"`
	FirstName           string    `json:"first_name" db:"first_name"`
	ActiveChildID       *int64    `json:"active_child_id,omitempty" db:"active_child_id"`
	NotificationEnabled bool      `json:"notification_enabled" db:"notification_enabled"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}
