// Package sos decides when a parent should be interrupted with a single
// emergency script.
//
// A Detector runs a fixed, ordered list of signals (explicit crisis flag,
// keyword match, rapid repeated script use, recent failure) and stops at the
// first one that fires. On a match it asks a Ranker for the best emergency
// script and falls back to any emergency-suitable script. Read errors never
// reach the caller: a failing check counts as "did not fire".
package sos

import (
	"context"
	"time"

	"github.com/example/nepbot/pkg/models"
)

// Reason identifies which signal produced a match
type Reason string

const (
	ReasonExplicitFlag  Reason = "explicit_flag"
	ReasonKeywordMatch  Reason = "keyword_match"
	ReasonRapidRepeat   Reason = "rapid_repeat"
	ReasonRecentFailure Reason = "recent_failure"
)

// DefaultLocation is the location tag passed to the ranker
const DefaultLocation = "home"

// DefaultKeywords is the closed list of emergency phrases matched against search text
var DefaultKeywords = []string{
	"emergency",
	"meltdown",
	"screaming",
	"out of control",
	"can't take it",
	"cant take it",
	"major tantrum",
	"help now",
	"crisis",
	"hitting",
	"biting",
	"throwing things",
	"losing it",
}

// Input is the context of one evaluation
type Input struct {
	UserID      int64
	ChildID     *int64
	SearchQuery string
	// CrisisMode is the explicit crisis flag, e.g. the /sos command
	CrisisMode bool
}

// Result is the outcome of one evaluation
type Result struct {
	IsMatch bool
	Script  *models.Script
	Reason  Reason
}

// Store is the read surface the detector needs from persistence
type Store interface {
	// UsageEventsSince returns the user's usage events at or after since
	UsageEventsSince(ctx context.Context, userID int64, since time.Time) ([]models.ScriptUsageEvent, error)
	// LatestFeedback returns the user's newest feedback event or nil
	LatestFeedback(ctx context.Context, userID int64) (*models.ScriptFeedbackEvent, error)
	// ScriptByID returns a script or nil when it does not exist
	ScriptByID(ctx context.Context, id int64) (*models.Script, error)
	// EmergencyScripts returns up to limit emergency-suitable scripts, lowest ID first
	EmergencyScripts(ctx context.Context, limit int) ([]models.Script, error)
}

// RankRequest parameterizes a ranking call
type RankRequest struct {
	UserID    int64
	ChildID   *int64
	Situation string
	Location  string
}

// Ranker picks the best emergency script for a context.
// It returns ok=false when it has no candidate.
type Ranker interface {
	BestSOSScript(ctx context.Context, req RankRequest) (scriptID int64, ok bool, err error)
}

// Config holds the detector thresholds
type Config struct {
	Keywords       []string
	RapidWindow    time.Duration
	RapidThreshold int
	FailureWindow  time.Duration
	// CheckTimeout bounds every single read made by the detector
	CheckTimeout time.Duration
	Location     string
}

// DefaultConfig returns the default detector configuration
func DefaultConfig() Config {
	return Config{
		Keywords:       DefaultKeywords,
		RapidWindow:    10 * time.Minute,
		RapidThreshold: 3,
		FailureWindow:  5 * time.Minute,
		CheckTimeout:   5 * time.Second,
		Location:       DefaultLocation,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if len(c.Keywords) == 0 {
		c.Keywords = def.Keywords
	}
	if c.RapidWindow <= 0 {
		c.RapidWindow = def.RapidWindow
	}
	if c.RapidThreshold <= 0 {
		c.RapidThreshold = def.RapidThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = def.FailureWindow
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = def.CheckTimeout
	}
	if c.Location == "" {
		c.Location = def.Location
	}
	return c
}
