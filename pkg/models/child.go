package models

import "time"

// Brain profiles used to tag children and scripts
const (
	ProfileIntense    = "INTENSE"
	ProfileDistracted = "DISTRACTED"
	ProfileDefiant    = "DEFIANT"
)

// Child is a child profile owned by a user
type Child struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	Name         string    `json:"name" db:"name"`
	BrainProfile string    `json:"brain_profile" db:"brain_profile"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
