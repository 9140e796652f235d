package database

import (
	"context"
	"fmt"
	"time"

	"github.com/example/nepbot/pkg/models"
)

// TrackerRepository handles database operations for daily tracker completions
type TrackerRepository struct{}

// NewTrackerRepository creates a new repository instance
func NewTrackerRepository() *TrackerRepository {
	return &TrackerRepository{}
}

// dayKey is the stored form of a tracker day. Days are always keyed in UTC.
func dayKey(t time.Time) string {
	return t.UTC().Format(models.DayLayout)
}

// MarkDay records that the user completed the UTC day containing day.
// It reports false when the day was already completed.
func (r *TrackerRepository) MarkDay(ctx context.Context, userID int64, day time.Time) (bool, error) {
	query := `
		INSERT INTO tracker_days (user_id, day, completed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, day) DO NOTHING
	`
	result, err := DB.ExecContext(ctx, DB.Rebind(query), userID, dayKey(day), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to mark tracker day: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Days returns all completed days of a user in ascending order
func (r *TrackerRepository) Days(ctx context.Context, userID int64) ([]models.TrackerDay, error) {
	query := `
		SELECT user_id, day, completed_at
		FROM tracker_days
		WHERE user_id = ?
		ORDER BY day
	`
	var days []models.TrackerDay
	if err := DB.SelectContext(ctx, &days, DB.Rebind(query), userID); err != nil {
		return nil, fmt.Errorf("failed to get tracker days: %w", err)
	}
	return days, nil
}

// UsersMissingDay returns IDs of users with notifications on who have not completed the UTC day containing day
func (r *TrackerRepository) UsersMissingDay(ctx context.Context, day time.Time) ([]int64, error) {
	query := `
		SELECT u.id
		FROM users u
		WHERE u.notification_enabled = ?
		AND NOT EXISTS (
			SELECT 1 FROM tracker_days t WHERE t.user_id = u.id AND t.day = ?
		)
		ORDER BY u.id
	`
	var ids []int64
	if err := DB.SelectContext(ctx, &ids, DB.Rebind(query), true, dayKey(day)); err != nil {
		return nil, fmt.Errorf("failed to get users missing tracker day: %w", err)
	}
	return ids, nil
}
