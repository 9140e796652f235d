package database

import (
	"context"
	"fmt"
	"time"

	"github.com/example/nepbot/pkg/models"
)

// FollowUp is a script usage that has not received feedback yet
type FollowUp struct {
	UserID      int64     `db:"user_id"`
	ScriptID    int64     `db:"script_id"`
	ScriptTitle string    `db:"title"`
	UsedAt      time.Time `db:"used_at"`
}

// UsageRepository handles database operations for script usage events
type UsageRepository struct{}

// NewUsageRepository creates a new repository instance
func NewUsageRepository() *UsageRepository {
	return &UsageRepository{}
}

// Create appends a usage event
func (r *UsageRepository) Create(ctx context.Context, ev *models.ScriptUsageEvent) error {
	if ev.UsedAt.IsZero() {
		ev.UsedAt = time.Now()
	}
	ev.UsedAt = ev.UsedAt.UTC()

	query := `INSERT INTO script_usage (user_id, script_id, used_at) VALUES (?, ?, ?) RETURNING id`
	err := DB.QueryRowxContext(ctx, DB.Rebind(query), ev.UserID, ev.ScriptID, ev.UsedAt).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("failed to create usage event: %w", err)
	}
	return nil
}

// EventsSince returns the user's usage events at or after since, newest first
func (r *UsageRepository) EventsSince(ctx context.Context, userID int64, since time.Time) ([]models.ScriptUsageEvent, error) {
	query := `
		SELECT id, user_id, script_id, used_at
		FROM script_usage
		WHERE user_id = ? AND used_at >= ?
		ORDER BY used_at DESC
	`
	var events []models.ScriptUsageEvent
	if err := DB.SelectContext(ctx, &events, DB.Rebind(query), userID, since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to get usage events: %w", err)
	}
	return events, nil
}

// PendingFollowUps returns the latest usage per (user, script) inside [from, to]
// for users with notifications on, skipping usages already followed by feedback.
func (r *UsageRepository) PendingFollowUps(ctx context.Context, from, to time.Time) ([]FollowUp, error) {
	query := `
		SELECT u.user_id, u.script_id, s.title, u.used_at
		FROM script_usage u
		JOIN scripts s ON s.id = u.script_id
		JOIN users us ON us.id = u.user_id
		WHERE u.used_at >= ? AND u.used_at <= ?
		AND us.notification_enabled = ?
		AND NOT EXISTS (
			SELECT 1 FROM script_feedback f
			WHERE f.user_id = u.user_id AND f.script_id = u.script_id AND f.created_at >= u.used_at
		)
		ORDER BY u.used_at DESC
	`
	var rows []FollowUp
	if err := DB.SelectContext(ctx, &rows, DB.Rebind(query), from.UTC(), to.UTC(), true); err != nil {
		return nil, fmt.Errorf("failed to get pending follow-ups: %w", err)
	}

	type key struct{ user, script int64 }
	seen := make(map[key]bool, len(rows))
	result := make([]FollowUp, 0, len(rows))
	for _, row := range rows {
		k := key{row.UserID, row.ScriptID}
		if seen[k] {
			continue
		}
		seen[k] = true
		result = append(result, row)
	}
	return result, nil
}
