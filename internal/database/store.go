package database

import (
	"context"
	"time"

	"github.com/example/nepbot/pkg/models"
)

// Store adapts the repositories to the read/write surfaces used by the
// sos detector and the feedback aggregator.
type Store struct {
	Scripts  *ScriptRepository
	Usage    *UsageRepository
	Feedback *FeedbackRepository
}

// NewStore creates a store over fresh repositories
func NewStore() *Store {
	return &Store{
		Scripts:  NewScriptRepository(),
		Usage:    NewUsageRepository(),
		Feedback: NewFeedbackRepository(),
	}
}

// UsageEventsSince returns the user's usage events at or after since
func (s *Store) UsageEventsSince(ctx context.Context, userID int64, since time.Time) ([]models.ScriptUsageEvent, error) {
	return s.Usage.EventsSince(ctx, userID, since)
}

// LatestFeedback returns the user's newest feedback event, or nil
func (s *Store) LatestFeedback(ctx context.Context, userID int64) (*models.ScriptFeedbackEvent, error) {
	return s.Feedback.Latest(ctx, userID)
}

// ScriptByID returns a script, or nil if it does not exist
func (s *Store) ScriptByID(ctx context.Context, id int64) (*models.Script, error) {
	return s.Scripts.GetByID(ctx, id)
}

// EmergencyScripts returns up to limit emergency-suitable scripts, lowest ID first
func (s *Store) EmergencyScripts(ctx context.Context, limit int) ([]models.Script, error) {
	return s.Scripts.EmergencyScripts(ctx, limit)
}

// FeedbackByScript returns the user's feedback for one script, optionally for one child
func (s *Store) FeedbackByScript(ctx context.Context, userID, scriptID int64, childID *int64) ([]models.ScriptFeedbackEvent, error) {
	return s.Feedback.ByScript(ctx, userID, scriptID, childID)
}

// FeedbackByUser returns all of the user's feedback, optionally for one child
func (s *Store) FeedbackByUser(ctx context.Context, userID int64, childID *int64) ([]models.ScriptFeedbackEvent, error) {
	return s.Feedback.ByUser(ctx, userID, childID)
}

// CreateFeedback appends a feedback event
func (s *Store) CreateFeedback(ctx context.Context, ev *models.ScriptFeedbackEvent) error {
	return s.Feedback.Create(ctx, ev)
}
