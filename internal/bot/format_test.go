package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/nepbot/internal/excel"
	"github.com/example/nepbot/internal/sos"
	"github.com/example/nepbot/internal/streak"
	"github.com/example/nepbot/pkg/models"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data    string
		want    callbackAction
		wantErr bool
	}{
		{data: "dismiss", want: callbackAction{Kind: callbackDismiss}},
		{data: "used:42", want: callbackAction{Kind: callbackUsed, ScriptID: 42}},
		{data: "fb:7:not_yet", want: callbackAction{Kind: callbackFeedback, ScriptID: 7, Outcome: models.OutcomeNotYet}},
		{data: "fb:7:great", wantErr: true},
		{data: "fb:x:worked", wantErr: true},
		{data: "used:0", wantErr: true},
		{data: "used", wantErr: true},
		{data: "dismiss:1", wantErr: true},
		{data: "child:3", want: callbackAction{Kind: callbackChild, ChildID: 3}},
		{data: "child:-1", wantErr: true},
		{data: "main_menu", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := parseCallback(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScriptButtonsRoundTrip(t *testing.T) {
	rows := scriptButtons(9, true)
	require.Len(t, rows, 3)
	assert.Equal(t, callbackDismiss, rows[2][0].CallbackData)

	for _, row := range rows {
		for _, btn := range row {
			action, err := parseCallback(btn.CallbackData)
			require.NoError(t, err, btn.CallbackData)
			if action.Kind != callbackDismiss {
				assert.Equal(t, int64(9), action.ScriptID)
			}
		}
	}
	assert.Len(t, scriptButtons(9, false), 2)
}

func TestFormatScript(t *testing.T) {
	s := &models.Script{
		Title:            "Calm Corner",
		SituationTrigger: "bedtime screaming",
		Phrase1:          "I'm here.",
		Phrase2:          "You're safe.",
		Action1:          "Get low",
		NeurologicalTip:  "The amygdala needs safety first.",
	}
	out := formatScript(s)
	assert.Contains(t, out, "📋 Calm Corner")
	assert.Contains(t, out, "1. \"I'm here.\"")
	assert.Contains(t, out, "2. \"You're safe.\"")
	assert.Contains(t, out, "• Get low")
	assert.Contains(t, out, "🧠 The amygdala")
	assert.NotContains(t, out, "Category:")

	sosText := formatSOS(sos.State{IsSOS: true, Script: s, Reason: sos.ReasonRecentFailure})
	assert.Contains(t, sosText, "🆘 The last one didn't work")
}

func TestFormatStatsOrdersBySuccessRate(t *testing.T) {
	stats := map[int64]models.FeedbackStats{
		1: {TotalCount: 2, WorkedCount: 1, NotYetCount: 1, SuccessRate: 50},
		2: {TotalCount: 1, WorkedCount: 1, SuccessRate: 100},
	}
	out := formatStats(stats, map[int64]string{2: "Calm Corner"})
	assert.Less(t, strings.Index(out, "Calm Corner"), strings.Index(out, "Script #1"))
	assert.Contains(t, out, "100% worked · 1 tries")

	assert.Contains(t, formatStats(nil, nil), "No feedback yet")
}

func TestFormatStreak(t *testing.T) {
	now := time.Date(2026, 10, 21, 9, 0, 0, 0, time.UTC)
	days := []time.Time{now.AddDate(0, 0, -1), now}
	out := formatStreak(streak.Summarize(days, now), streak.Month(days, 2026, time.October, now), now)
	assert.Contains(t, out, "Current streak: 2")
	assert.Contains(t, out, "October 2026")
	assert.Contains(t, out, "✅ ✅")
	assert.NotContains(t, out, "Send /done")
}

func TestFormatImportResultTruncatesErrors(t *testing.T) {
	r := &excel.ImportResult{TotalProcessed: 12, Skipped: 12}
	for i := 0; i < 12; i++ {
		r.Errors = append(r.Errors, "Row: title cannot be empty")
	}
	out := formatImportResult(r)
	assert.Contains(t, out, "Skipped: 12")
	assert.Contains(t, out, "and 2 more errors")
}

func TestParseProfile(t *testing.T) {
	p, ok := parseProfile(" intense ")
	assert.True(t, ok)
	assert.Equal(t, models.ProfileIntense, p)

	_, ok = parseProfile("sleepy")
	assert.False(t, ok)
}

func TestChildButtons(t *testing.T) {
	kids := []models.Child{{ID: 4, Name: "Mia"}, {ID: 5, Name: "Leo"}}
	rows := childButtons(kids)
	require.Len(t, rows, 2)
	action, err := parseCallback(rows[1][0].CallbackData)
	require.NoError(t, err)
	assert.Equal(t, int64(5), action.ChildID)

	active := int64(4)
	out := formatChildren(kids, &active)
	assert.Contains(t, out, "Mia () ⭐")
	assert.NotContains(t, out, "Leo () ⭐")
}
