package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/example/nepbot/internal/database"
	"github.com/example/nepbot/internal/logger"
)

// Default notification settings
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 21
	DefaultFollowUpWindow        = 3 * time.Hour
	DefaultFollowUpDelay         = 30 * time.Minute
	DefaultTrackerReminderTime   = "19:00"
)

// Notifier sends messages produced by scheduled jobs
type Notifier interface {
	SendFeedbackPrompt(userID, scriptID int64, scriptTitle string) error
	SendTrackerReminder(userID int64) error
}

// FollowUpSource lists script usages still waiting for feedback
type FollowUpSource interface {
	PendingFollowUps(ctx context.Context, from, to time.Time) ([]database.FollowUp, error)
}

// TrackerSource lists users who have not completed a tracker day
type TrackerSource interface {
	UsersMissingDay(ctx context.Context, day time.Time) ([]int64, error)
}

// Config controls when reminders are sent
type Config struct {
	StartHour int
	EndHour   int
	// FollowUpWindow is how far back usages are considered for a feedback prompt
	FollowUpWindow time.Duration
	// FollowUpDelay is how long to wait after a usage before asking
	FollowUpDelay       time.Duration
	TrackerReminderTime string
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		StartHour:           DefaultNotificationStartHour,
		EndHour:             DefaultNotificationEndHour,
		FollowUpWindow:      DefaultFollowUpWindow,
		FollowUpDelay:       DefaultFollowUpDelay,
		TrackerReminderTime: DefaultTrackerReminderTime,
	}
}

type promptKey struct {
	userID   int64
	scriptID int64
	usedAt   int64
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	notifier  Notifier
	followUps FollowUpSource
	tracker   TrackerSource
	cfg       Config
	log       *logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	prompted map[promptKey]time.Time
}

// New creates a new scheduler instance
func New(notifier Notifier, followUps FollowUpSource, tracker TrackerSource, cfg Config, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.FollowUpWindow <= 0 {
		cfg.FollowUpWindow = DefaultFollowUpWindow
	}
	if cfg.FollowUpDelay <= 0 || cfg.FollowUpDelay >= cfg.FollowUpWindow {
		cfg.FollowUpDelay = DefaultFollowUpDelay
	}
	if cfg.TrackerReminderTime == "" {
		cfg.TrackerReminderTime = DefaultTrackerReminderTime
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		notifier:  notifier,
		followUps: followUps,
		tracker:   tracker,
		cfg:       cfg,
		log:       log.With("component", "scheduler"),
		now:       time.Now,
		prompted:  make(map[promptKey]time.Time),
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.scheduler.Every(1).Hour().Do(s.checkAndSendFollowUps, ctx); err != nil {
		return fmt.Errorf("failed to schedule follow-ups: %w", err)
	}
	if _, err := s.scheduler.Every(1).Day().At(s.cfg.TrackerReminderTime).Do(s.sendTrackerReminders, ctx); err != nil {
		return fmt.Errorf("failed to schedule tracker reminders: %w", err)
	}

	// Start the scheduler in a non-blocking manner
	s.scheduler.StartAsync()
	s.log.Info("scheduler started", "jobs", len(s.scheduler.Jobs()))
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// withinNotificationHours reports whether hour falls inside the configured window
func (s *Scheduler) withinNotificationHours(hour int) bool {
	return hour >= s.cfg.StartHour && hour <= s.cfg.EndHour
}

// checkAndSendFollowUps asks for feedback on scripts used recently without any answer
func (s *Scheduler) checkAndSendFollowUps(ctx context.Context) {
	s.sendFollowUps(ctx, false)
}

func (s *Scheduler) sendFollowUps(ctx context.Context, anyHour bool) {
	now := s.now().UTC()
	if !anyHour && !s.withinNotificationHours(now.Hour()) {
		s.log.Debug("outside notification hours, skipping follow-ups",
			"hour", now.Hour(), "start", s.cfg.StartHour, "end", s.cfg.EndHour)
		return
	}

	from := now.Add(-s.cfg.FollowUpWindow)
	to := now.Add(-s.cfg.FollowUpDelay)
	pending, err := s.followUps.PendingFollowUps(ctx, from, to)
	if err != nil {
		s.log.Error("failed to get pending follow-ups", "error", err)
		return
	}

	s.mu.Lock()
	for k, at := range s.prompted {
		if at.Before(from) {
			delete(s.prompted, k)
		}
	}
	s.mu.Unlock()

	for _, f := range pending {
		key := promptKey{userID: f.UserID, scriptID: f.ScriptID, usedAt: f.UsedAt.Unix()}
		s.mu.Lock()
		_, done := s.prompted[key]
		s.mu.Unlock()
		if done {
			continue
		}

		if err := s.notifier.SendFeedbackPrompt(f.UserID, f.ScriptID, f.ScriptTitle); err != nil {
			s.log.Warn("failed to send feedback prompt", "user_id", f.UserID, "script_id", f.ScriptID, "error", err)
			continue
		}
		s.mu.Lock()
		s.prompted[key] = f.UsedAt
		s.mu.Unlock()
	}
}

// sendTrackerReminders nudges users who have not completed today's tracker
func (s *Scheduler) sendTrackerReminders(ctx context.Context) {
	today := s.now().UTC()
	users, err := s.tracker.UsersMissingDay(ctx, today)
	if err != nil {
		s.log.Error("failed to get users for tracker reminder", "error", err)
		return
	}
	sent := 0
	for _, id := range users {
		if err := s.notifier.SendTrackerReminder(id); err != nil {
			s.log.Warn("failed to send tracker reminder", "user_id", id, "error", err)
			continue
		}
		sent++
	}
	s.log.Info("tracker reminders sent", "count", sent)
}

// RunManualCheck forces a follow-up check regardless of the notification window
func (s *Scheduler) RunManualCheck(ctx context.Context) {
	s.sendFollowUps(ctx, true)
}
