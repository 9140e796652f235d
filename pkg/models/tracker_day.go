package models

import "time"

// TrackerDay marks a day the user completed their daily practice
type TrackerDay struct {
	UserID      int64     `json:"user_id" db:"user_id"`
	Day         string    `json:"day" db:"day"` // YYYY-MM-DD
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// DayLayout is the layout of TrackerDay.Day
const DayLayout = "2006-01-02"
