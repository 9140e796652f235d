package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/nepbot/internal/logger"
	"github.com/example/nepbot/pkg/models"
)

// ErrInvalidOutcome is returned by Submit for outcomes other than worked, progress and not_yet
var ErrInvalidOutcome = errors.New("invalid feedback outcome")

// Store is the persistence surface used by the aggregator
type Store interface {
	FeedbackByScript(ctx context.Context, userID, scriptID int64, childID *int64) ([]models.ScriptFeedbackEvent, error)
	FeedbackByUser(ctx context.Context, userID int64, childID *int64) ([]models.ScriptFeedbackEvent, error)
	CreateFeedback(ctx context.Context, ev *models.ScriptFeedbackEvent) error
}

// Aggregator computes feedback statistics. Nothing is cached: every call
// reads the matching rows again.
type Aggregator struct {
	store Store
	log   *logger.Logger
}

// NewAggregator creates an aggregator over store
func NewAggregator(store Store, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Aggregator{store: store, log: log.With("component", "feedback")}
}

// Compute aggregates events. Events with an unknown outcome are ignored so
// that the three counters always add up to TotalCount.
func Compute(events []models.ScriptFeedbackEvent) models.FeedbackStats {
	var st models.FeedbackStats
	for _, ev := range events {
		switch ev.Outcome {
		case models.OutcomeWorked:
			st.WorkedCount++
		case models.OutcomeProgress:
			st.ProgressCount++
		case models.OutcomeNotYet:
			st.NotYetCount++
		default:
			continue
		}
		st.TotalCount++
	}
	if st.TotalCount > 0 {
		st.SuccessRate = float64(st.WorkedCount) / float64(st.TotalCount) * 100
	}
	return st
}

// StatsForScript returns the stats of one script for a user (and child, when
// given). A read failure yields zero stats.
func (a *Aggregator) StatsForScript(ctx context.Context, userID, scriptID int64, childID *int64) models.FeedbackStats {
	events, err := a.store.FeedbackByScript(ctx, userID, scriptID, childID)
	if err != nil {
		a.log.Warn("failed to load script feedback", "user_id", userID, "script_id", scriptID, "error", err)
		return models.FeedbackStats{}
	}
	return Compute(events)
}

// StatsForAllScripts returns stats grouped by script ID. A read failure
// yields an empty map.
func (a *Aggregator) StatsForAllScripts(ctx context.Context, userID int64, childID *int64) map[int64]models.FeedbackStats {
	result := make(map[int64]models.FeedbackStats)
	events, err := a.store.FeedbackByUser(ctx, userID, childID)
	if err != nil {
		a.log.Warn("failed to load user feedback", "user_id", userID, "error", err)
		return result
	}

	grouped := make(map[int64][]models.ScriptFeedbackEvent)
	for _, ev := range events {
		grouped[ev.ScriptID] = append(grouped[ev.ScriptID], ev)
	}
	for scriptID, group := range grouped {
		result[scriptID] = Compute(group)
	}
	return result
}

// Submit validates and stores one feedback event
func (a *Aggregator) Submit(ctx context.Context, ev *models.ScriptFeedbackEvent) error {
	if ev.UserID == 0 || ev.ScriptID == 0 {
		return fmt.Errorf("feedback requires a user and a script")
	}
	if !ev.Outcome.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, ev.Outcome)
	}
	ev.Notes = strings.TrimSpace(ev.Notes)
	if err := a.store.CreateFeedback(ctx, ev); err != nil {
		return fmt.Errorf("failed to submit feedback: %w", err)
	}
	a.log.Info("feedback submitted", "user_id", ev.UserID, "script_id", ev.ScriptID, "outcome", ev.Outcome)
	return nil
}
