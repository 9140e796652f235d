package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/nepbot/internal/sos"
	"github.com/example/nepbot/pkg/models"
)

func TestRankScripts(t *testing.T) {
	candidates := []models.Script{
		{ID: 4, Profile: models.ProfileDistracted, SituationTrigger: "Homework refusal"},
		{ID: 2, Profile: models.ProfileIntense, SituationTrigger: "Public meltdown at the store"},
		{ID: 9, SituationTrigger: "Sibling fight"},
	}

	id, ok := rankScripts(nil, "", "", nil)
	assert.False(t, ok)
	assert.Zero(t, id)

	id, ok = rankScripts(candidates, "", "", nil)
	require.True(t, ok)
	assert.Equal(t, int64(2), id, "ties break on lowest id")

	id, _ = rankScripts(candidates, models.ProfileDistracted, "", nil)
	assert.Equal(t, int64(4), id)

	id, _ = rankScripts(candidates, "", "a sibling fight in the car", nil)
	assert.Equal(t, int64(9), id)

	history := []models.ScriptFeedbackEvent{
		{ScriptID: 9, Outcome: models.OutcomeWorked},
		{ScriptID: 9, Outcome: models.OutcomeWorked},
		{ScriptID: 2, Outcome: models.OutcomeNotYet},
	}
	id, _ = rankScripts(candidates, models.ProfileIntense, "", history)
	assert.Equal(t, int64(9), id, "4 from feedback beats 3-1 from profile")
}

func TestTriggerWords(t *testing.T) {
	assert.Equal(t, []string{"public", "meltdown", "store"}, triggerWords("Public meltdown at the STORE, public!"))
	assert.Empty(t, triggerWords(""))
}

func TestScriptRankerWithDetector(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	seedUser(t, 1)
	seedScript(t, models.Script{Title: "Plain"})
	calm := seedScript(t, models.Script{Title: "Calm Corner", EmergencySuitable: true, SituationTrigger: "bedtime screaming"})
	store := seedScript(t, models.Script{Title: "Store Exit", EmergencySuitable: true, SituationTrigger: "tantrum in the store"})
	seedScript(t, models.Script{Title: "Car Pullover", EmergencySuitable: true, Location: "car", SituationTrigger: "tantrum in the store"})

	child := &models.Child{UserID: 1, Name: "Mia", BrainProfile: models.ProfileIntense}
	require.NoError(t, NewChildRepository().Save(ctx, child))

	ranker := NewScriptRanker()
	id, ok, err := ranker.BestSOSScript(ctx, sos.RankRequest{UserID: 1, ChildID: &child.ID, Situation: "major tantrum in the store", Location: "home"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.ID, id)

	now := time.Now()
	usage := NewUsageRepository()
	for i := 0; i < 3; i++ {
		require.NoError(t, usage.Create(ctx, &models.ScriptUsageEvent{UserID: 1, ScriptID: calm.ID, UsedAt: now.Add(-time.Duration(i+1) * time.Minute)}))
	}

	d := sos.NewDetector(NewStore(), ranker, sos.DefaultConfig(), nil)
	res := d.Evaluate(ctx, sos.Input{UserID: 1, ChildID: &child.ID}, sos.NewSession())
	require.True(t, res.IsMatch)
	assert.Equal(t, sos.ReasonRapidRepeat, res.Reason)
	assert.Equal(t, calm.ID, res.Script.ID)
}
