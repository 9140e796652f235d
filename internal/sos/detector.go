package sos

import (
	"context"
	"strings"
	"time"

	"github.com/example/nepbot/internal/logger"
	"github.com/example/nepbot/pkg/models"
)

// signal is one entry of the ordered check list
type signal struct {
	reason Reason
	// automatic signals are suppressed by Session.Dismiss
	automatic bool
	check     func(ctx context.Context, in Input) (bool, error)
}

// Detector evaluates the SOS signals for a user
type Detector struct {
	store   Store
	ranker  Ranker
	cfg     Config
	log     *logger.Logger
	now     func() time.Time
	signals []signal
}

// Option customizes a Detector
type Option func(*Detector)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a detector over the given store and ranker
func NewDetector(store Store, ranker Ranker, cfg Config, log *logger.Logger, opts ...Option) *Detector {
	if log == nil {
		log = logger.NewNop()
	}
	cfg = cfg.withDefaults()
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		if k = normalize(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	cfg.Keywords = keywords

	d := &Detector{
		store:  store,
		ranker: ranker,
		cfg:    cfg,
		log:    log.With("component", "sos"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	// Order matters: the first signal that fires wins.
	d.signals = []signal{
		{reason: ReasonExplicitFlag, check: d.checkExplicitFlag},
		{reason: ReasonKeywordMatch, automatic: true, check: d.checkKeywords},
		{reason: ReasonRapidRepeat, automatic: true, check: d.checkRapidRepeat},
		{reason: ReasonRecentFailure, automatic: true, check: d.checkRecentFailure},
	}
	return d
}

// Evaluate runs the signals in priority order and resolves a script for the
// first one that fires. It never fails; problems resolve to a negative result.
// sess may be nil, in which case nothing is suppressed.
func (d *Detector) Evaluate(ctx context.Context, in Input, sess *Session) Result {
	if in.UserID == 0 {
		return Result{}
	}
	log := d.log.With("user_id", in.UserID)

	if in.CrisisMode && sess != nil {
		sess.clearDismissal()
	}
	suppressed := sess != nil && sess.Dismissed()

	for _, sig := range d.signals {
		if sig.automatic && suppressed {
			continue
		}

		fired, err := d.runCheck(ctx, sig, in)
		if err != nil {
			log.Warn("sos signal check failed", "signal", sig.reason, "error", err)
			continue
		}
		if !fired {
			continue
		}

		script := d.resolveScript(ctx, in, sig.reason)
		if script == nil {
			log.Info("sos signal fired but no emergency script is available", "signal", sig.reason)
			return Result{}
		}
		log.Info("sos match", "signal", sig.reason, "script_id", script.ID)
		return Result{IsMatch: true, Script: script, Reason: sig.reason}
	}
	return Result{}
}

func (d *Detector) runCheck(ctx context.Context, sig signal, in Input) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CheckTimeout)
	defer cancel()
	return sig.check(ctx, in)
}

func (d *Detector) checkExplicitFlag(_ context.Context, in Input) (bool, error) {
	return in.CrisisMode, nil
}

func (d *Detector) checkKeywords(_ context.Context, in Input) (bool, error) {
	_, ok := MatchKeyword(in.SearchQuery, d.cfg.Keywords)
	return ok, nil
}

func (d *Detector) checkRapidRepeat(ctx context.Context, in Input) (bool, error) {
	since := d.now().Add(-d.cfg.RapidWindow)
	events, err := d.store.UsageEventsSince(ctx, in.UserID, since)
	if err != nil {
		return false, err
	}
	return len(events) >= d.cfg.RapidThreshold, nil
}

func (d *Detector) checkRecentFailure(ctx context.Context, in Input) (bool, error) {
	latest, err := d.store.LatestFeedback(ctx, in.UserID)
	if err != nil {
		return false, err
	}
	if latest == nil || latest.Outcome != models.OutcomeNotYet {
		return false, nil
	}
	return d.now().Sub(latest.CreatedAt) < d.cfg.FailureWindow, nil
}

// resolveScript asks the ranker first and falls back to the lowest-ID
// emergency-suitable script.
func (d *Detector) resolveScript(ctx context.Context, in Input, reason Reason) *models.Script {
	log := d.log.With("user_id", in.UserID, "signal", reason)

	if d.ranker != nil {
		req := RankRequest{
			UserID:   in.UserID,
			ChildID:  in.ChildID,
			Location: d.cfg.Location,
		}
		if reason == ReasonKeywordMatch {
			req.Situation = in.SearchQuery
		}

		rctx, cancel := context.WithTimeout(ctx, d.cfg.CheckTimeout)
		id, ok, err := d.ranker.BestSOSScript(rctx, req)
		cancel()

		switch {
		case err != nil:
			log.Warn("sos ranking failed", "error", err)
		case ok:
			sctx, cancel := context.WithTimeout(ctx, d.cfg.CheckTimeout)
			script, err := d.store.ScriptByID(sctx, id)
			cancel()
			if err != nil {
				log.Warn("failed to load ranked script", "script_id", id, "error", err)
			} else if script != nil {
				return script
			} else {
				log.Warn("ranked script does not exist", "script_id", id)
			}
		}
	}

	fctx, cancel := context.WithTimeout(ctx, d.cfg.CheckTimeout)
	defer cancel()
	scripts, err := d.store.EmergencyScripts(fctx, 1)
	if err != nil {
		log.Warn("failed to load fallback emergency script", "error", err)
		return nil
	}
	if len(scripts) == 0 {
		return nil
	}
	return &scripts[0]
}

// MatchKeyword reports the first keyword contained in text, case-insensitively
func MatchKeyword(text string, keywords []string) (string, bool) {
	text = normalize(text)
	if text == "" {
		return "", false
	}
	for _, k := range keywords {
		if k != "" && strings.Contains(text, k) {
			return k, true
		}
	}
	return "", false
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'")

func normalize(s string) string {
	return apostrophes.Replace(strings.ToLower(strings.TrimSpace(s)))
}
