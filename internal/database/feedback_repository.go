package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/nepbot/pkg/models"
)

const feedbackColumns = `id, user_id, child_id, script_id, outcome, notes, created_at`

// FeedbackRepository handles database operations for script feedback events
type FeedbackRepository struct{}

// NewFeedbackRepository creates a new repository instance
func NewFeedbackRepository() *FeedbackRepository {
	return &FeedbackRepository{}
}

// Create appends a feedback event
func (r *FeedbackRepository) Create(ctx context.Context, ev *models.ScriptFeedbackEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	ev.CreatedAt = ev.CreatedAt.UTC()

	query := `
		INSERT INTO script_feedback (user_id, child_id, script_id, outcome, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := DB.QueryRowxContext(ctx, DB.Rebind(query),
		ev.UserID,
		ev.ChildID,
		ev.ScriptID,
		string(ev.Outcome),
		ev.Notes,
		ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

// Latest returns the user's most recent feedback event, or nil if there is none
func (r *FeedbackRepository) Latest(ctx context.Context, userID int64) (*models.ScriptFeedbackEvent, error) {
	query := `
		SELECT ` + feedbackColumns + `
		FROM script_feedback
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var ev models.ScriptFeedbackEvent
	err := DB.GetContext(ctx, &ev, DB.Rebind(query), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest feedback: %w", err)
	}
	return &ev, nil
}

// ByScript returns the user's feedback for one script, optionally narrowed to a child
func (r *FeedbackRepository) ByScript(ctx context.Context, userID, scriptID int64, childID *int64) ([]models.ScriptFeedbackEvent, error) {
	query := `SELECT ` + feedbackColumns + ` FROM script_feedback WHERE user_id = ? AND script_id = ?`
	args := []interface{}{userID, scriptID}
	if childID != nil {
		query += ` AND child_id = ?`
		args = append(args, *childID)
	}
	query += ` ORDER BY created_at`

	var events []models.ScriptFeedbackEvent
	if err := DB.SelectContext(ctx, &events, DB.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get feedback for script: %w", err)
	}
	return events, nil
}

// ByUser returns all of the user's feedback, optionally narrowed to a child
func (r *FeedbackRepository) ByUser(ctx context.Context, userID int64, childID *int64) ([]models.ScriptFeedbackEvent, error) {
	query := `SELECT ` + feedbackColumns + ` FROM script_feedback WHERE user_id = ?`
	args := []interface{}{userID}
	if childID != nil {
		query += ` AND child_id = ?`
		args = append(args, *childID)
	}
	query += ` ORDER BY script_id, created_at`

	var events []models.ScriptFeedbackEvent
	if err := DB.SelectContext(ctx, &events, DB.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get user feedback: %w", err)
	}
	return events, nil
}
