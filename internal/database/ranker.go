package database

import (
	"context"
	"strings"
	"unicode"

	"github.com/example/nepbot/internal/sos"
	"github.com/example/nepbot/pkg/models"
)

// Scoring weights used by ScriptRanker
const (
	profileMatchScore  = 3
	situationWordScore = 2
	workedScore        = 2
	progressScore      = 1
	notYetPenalty      = 1
	minSituationWord   = 4
)

// ScriptRanker picks the best emergency script for a user from the library,
// their feedback history and the active child's brain profile.
type ScriptRanker struct {
	scripts  *ScriptRepository
	feedback *FeedbackRepository
	children *ChildRepository
}

// NewScriptRanker creates a new ranker
func NewScriptRanker() *ScriptRanker {
	return &ScriptRanker{
		scripts:  NewScriptRepository(),
		feedback: NewFeedbackRepository(),
		children: NewChildRepository(),
	}
}

// BestSOSScript implements sos.Ranker
func (r *ScriptRanker) BestSOSScript(ctx context.Context, req sos.RankRequest) (int64, bool, error) {
	candidates, err := r.scripts.EmergencyCandidates(ctx, req.Location)
	if err != nil {
		return 0, false, err
	}
	if len(candidates) == 0 {
		return 0, false, nil
	}

	var profile string
	if req.ChildID != nil {
		child, err := r.children.GetByID(ctx, *req.ChildID)
		if err != nil {
			return 0, false, err
		}
		if child != nil {
			profile = child.BrainProfile
		}
	}

	history, err := r.feedback.ByUser(ctx, req.UserID, nil)
	if err != nil {
		return 0, false, err
	}

	id, ok := rankScripts(candidates, profile, req.Situation, history)
	return id, ok, nil
}

// rankScripts returns the highest scoring candidate, lowest ID on ties
func rankScripts(candidates []models.Script, profile, situation string, history []models.ScriptFeedbackEvent) (int64, bool) {
	if len(candidates) == 0 {
		return 0, false
	}

	feedbackScore := make(map[int64]int)
	for _, ev := range history {
		switch ev.Outcome {
		case models.OutcomeWorked:
			feedbackScore[ev.ScriptID] += workedScore
		case models.OutcomeProgress:
			feedbackScore[ev.ScriptID] += progressScore
		case models.OutcomeNotYet:
			feedbackScore[ev.ScriptID] -= notYetPenalty
		}
	}

	situation = strings.ToLower(situation)

	var (
		bestID    int64
		bestScore int
		found     bool
	)
	for _, s := range candidates {
		score := feedbackScore[s.ID]
		if profile != "" && strings.EqualFold(s.Profile, profile) {
			score += profileMatchScore
		}
		if situation != "" {
			for _, w := range triggerWords(s.SituationTrigger) {
				if strings.Contains(situation, w) {
					score += situationWordScore
				}
			}
		}
		if !found || score > bestScore || (score == bestScore && s.ID < bestID) {
			bestID, bestScore, found = s.ID, score, true
		}
	}
	return bestID, found
}

// triggerWords splits a situation trigger into distinct lower-case words of
// at least minSituationWord letters
func triggerWords(trigger string) []string {
	fields := strings.FieldsFunc(strings.ToLower(trigger), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	seen := make(map[string]bool, len(fields))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minSituationWord || seen[f] {
			continue
		}
		seen[f] = true
		words = append(words, f)
	}
	return words
}
