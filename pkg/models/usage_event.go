package models

import "time"

// ScriptUsageEvent records that a script was shown to or used by a user
type ScriptUsageEvent struct {
	ID       int64     `json:"id" db:"id"`
	UserID   int64     `json:"user_id" db:"user_id"`
	ScriptID int64     `json:"script_id" db:"script_id"`
	UsedAt   time.Time `json:"used_at" db:"used_at"`
}
