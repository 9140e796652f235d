package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/nepbot/internal/database"
	"github.com/example/nepbot/internal/feedback"
	"github.com/example/nepbot/internal/logger"
	"github.com/example/nepbot/internal/sos"
	"github.com/example/nepbot/pkg/models"
)

const (
	adminID  int64 = 1
	parentID int64 = 2
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	answered int
	fileURL  string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) GetFileDirectURL(fileID string) (string, error) {
	return f.fileURL + "/" + fileID, nil
}

// drain returns the texts sent since the last call
func (f *fakeSender) drain() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Text
	}
	f.sent = nil
	return out
}

func newTestBot(t *testing.T) (*Bot, *fakeSender) {
	t.Helper()
	return newTestBotWithRanker(t, database.NewScriptRanker())
}

func newTestBotWithRanker(t *testing.T, ranker sos.Ranker) (*Bot, *fakeSender) {
	t.Helper()
	require.NoError(t, database.Connect("sqlite", filepath.Join(t.TempDir(), "bot.db")))
	t.Cleanup(func() { database.Close() })

	store := database.NewStore()
	detector := sos.NewDetector(store, ranker, sos.DefaultConfig(), logger.NewNop())
	b, err := New("test-token", detector, feedback.NewAggregator(store, logger.NewNop()), map[int64]bool{adminID: true}, logger.NewNop())
	require.NoError(t, err)

	fake := &fakeSender{}
	b.api = fake
	return b, fake
}

func command(userID int64, text string) tgbotapi.Update {
	cmd := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID, FirstName: "Sam"},
		Chat:     &tgbotapi.Chat{ID: userID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func text(userID int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: s,
	}}
}

func press(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}}
}

func seedEmergencyScript(t *testing.T) models.Script {
	t.Helper()
	s := models.Script{
		Title:             "Calm Corner",
		EmergencySuitable: true,
		SituationTrigger:  "bedtime meltdown",
		Phrase1:           "I'm right here.",
	}
	require.NoError(t, database.NewScriptRepository().Create(context.Background(), &s))
	return s
}

func hasSOSCard(texts []string) bool {
	for _, s := range texts {
		if strings.HasPrefix(s, "🆘") {
			return true
		}
	}
	return false
}

func TestStartAndChild(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(parentID, "/child Mia intense"))
	assert.Contains(t, fake.drain()[0], "/start first")

	b.handleUpdate(ctx, command(parentID, "/start"))
	assert.Contains(t, fake.drain()[0], "Hi Sam!")

	b.handleUpdate(ctx, command(parentID, "/child Mia Rose intense"))
	assert.Contains(t, fake.drain()[0], "Mia Rose (INTENSE)")

	user, err := database.NewUserRepository().GetByID(ctx, parentID)
	require.NoError(t, err)
	require.NotNil(t, user.ActiveChildID)
	child, err := database.NewChildRepository().GetByID(ctx, *user.ActiveChildID)
	require.NoError(t, err)
	assert.Equal(t, "Mia Rose", child.Name)

	b.handleUpdate(ctx, command(parentID, "/child Mia sleepy"))
	assert.Contains(t, fake.drain()[0], "must be one of")
}

func TestKeywordTextRaisesSOSUntilDismissed(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()
	script := seedEmergencyScript(t)
	b.handleUpdate(ctx, command(parentID, "/start"))
	fake.drain()

	b.handleUpdate(ctx, text(parentID, "she is having a MELTDOWN"))
	sent := fake.drain()
	require.Len(t, sent, 1)
	assert.True(t, hasSOSCard(sent))
	assert.Contains(t, sent[0], script.Title)
	assert.Equal(t, sos.ReasonKeywordMatch, b.monitorFor(parentID).State().Reason)

	b.handleUpdate(ctx, press(parentID, "dismiss"))
	fake.drain()
	assert.False(t, b.monitorFor(parentID).State().IsSOS)

	b.handleUpdate(ctx, text(parentID, "she is having a meltdown"))
	sent = fake.drain()
	assert.False(t, hasSOSCard(sent))
	assert.Contains(t, sent[0], "No scripts found")

	// an explicit request always gets through
	b.handleUpdate(ctx, command(parentID, "/sos"))
	assert.True(t, hasSOSCard(fake.drain()))
	assert.False(t, b.monitorFor(parentID).Dismissed())
}

func TestSearchShowsScripts(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()
	seedEmergencyScript(t)
	b.handleUpdate(ctx, command(parentID, "/start"))
	fake.drain()

	b.handleUpdate(ctx, text(parentID, "bedtime"))
	sent := fake.drain()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "Scripts for \"bedtime\"")
	assert.Contains(t, sent[1], "📋 Calm Corner")
	assert.False(t, hasSOSCard(sent))
}

func TestRapidUseRaisesSOS(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()
	script := seedEmergencyScript(t)
	b.handleUpdate(ctx, command(parentID, "/start"))
	fake.drain()

	used := fmt.Sprintf("used:%d", script.ID)
	b.handleUpdate(ctx, press(parentID, used))
	b.handleUpdate(ctx, press(parentID, used))
	assert.False(t, hasSOSCard(fake.drain()))

	b.handleUpdate(ctx, press(parentID, used))
	assert.True(t, hasSOSCard(fake.drain()))
	assert.Equal(t, sos.ReasonRapidRepeat, b.monitorFor(parentID).State().Reason)

	// the same suggestion is not sent twice
	b.handleUpdate(ctx, press(parentID, used))
	assert.False(t, hasSOSCard(fake.drain()))
	assert.Equal(t, 4, fake.answered)
}

func TestFeedbackButtons(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()
	script := seedEmergencyScript(t)
	b.handleUpdate(ctx, command(parentID, "/start"))
	fake.drain()

	b.handleUpdate(ctx, press(parentID, fmt.Sprintf("fb:%d:worked", script.ID)))
	sent := fake.drain()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "100% of the time (1 tries)")

	b.handleUpdate(ctx, press(parentID, fmt.Sprintf("fb:%d:not_yet", script.ID)))
	assert.True(t, hasSOSCard(fake.drain()))
	assert.Equal(t, sos.ReasonRecentFailure, b.monitorFor(parentID).State().Reason)

	b.handleUpdate(ctx, command(parentID, "/stats"))
	stats := fake.drain()[0]
	assert.Contains(t, stats, "Calm Corner")
	assert.Contains(t, stats, "50% worked · 2 tries")

	b.handleUpdate(ctx, press(parentID, "fb:1:great"))
	assert.Contains(t, fake.drain()[0], "Unknown action")
}

func TestDoneAndStreak(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()
	b.handleUpdate(ctx, command(parentID, "/start"))
	fake.drain()

	b.handleUpdate(ctx, command(parentID, "/done"))
	assert.Contains(t, fake.drain()[0], "Current streak: 1")

	b.handleUpdate(ctx, command(parentID, "/done"))
	assert.Contains(t, fake.drain()[0], "already marked")

	b.handleUpdate(ctx, command(parentID, "/streak"))
	out := fake.drain()[0]
	assert.Contains(t, out, "Current streak: 1")
	assert.Contains(t, out, "✅")
}

func TestImportRequiresAdmin(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(parentID, "/import"))
	assert.Contains(t, fake.drain()[0], "only available for administrators")
	assert.False(t, b.isAwaitingUpload(parentID))
}

func TestImportDocument(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()

	csvBody := "Title,Category,Profile,Situation,Emergency,Phrase1\n" +
		"Car Pullover,Transitions,intense,screaming in the car,yes,We'll stop when it's safe.\n" +
		",missing title,,,,\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, csvBody)
	}))
	defer srv.Close()
	fake.fileURL = srv.URL

	b.handleUpdate(ctx, command(adminID, "/import"))
	fake.drain()
	require.True(t, b.isAwaitingUpload(adminID))

	upload := tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: adminID},
		Chat:     &tgbotapi.Chat{ID: adminID},
		Document: &tgbotapi.Document{FileID: "abc", FileName: "library.csv", FileSize: len(csvBody)},
	}}
	b.handleUpdate(ctx, upload)
	out := fake.drain()[0]
	assert.Contains(t, out, "Created: 1")
	assert.Contains(t, out, "Skipped: 1")
	assert.False(t, b.isAwaitingUpload(adminID))

	s, err := database.NewScriptRepository().GetByTitle(ctx, "car pullover")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.EmergencySuitable)
	assert.Equal(t, models.ProfileIntense, s.Profile)
}

func TestNotifierMessages(t *testing.T) {
	b, fake := newTestBot(t)

	require.NoError(t, b.SendFeedbackPrompt(parentID, 3, "Calm Corner"))
	require.NoError(t, b.SendTrackerReminder(parentID))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.sent, 2)
	assert.Equal(t, "How did \"Calm Corner\" go?", fake.sent[0].Text)
	kb, ok := fake.sent[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "fb:3:worked", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Contains(t, fake.sent[1].Text, "/done")
}

func TestNotificationsCommand(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()
	users := database.NewUserRepository()

	b.handleUpdate(ctx, command(parentID, "/notifications off"))
	assert.Contains(t, fake.drain()[0], "/start first")

	b.handleUpdate(ctx, command(parentID, "/start"))
	fake.drain()

	b.handleUpdate(ctx, command(parentID, "/notifications off"))
	assert.Contains(t, fake.drain()[0], "Reminders are off")
	u, err := users.GetByID(ctx, parentID)
	require.NoError(t, err)
	assert.False(t, u.NotificationEnabled)

	missing, err := database.NewTrackerRepository().UsersMissingDay(ctx, time.Now())
	require.NoError(t, err)
	assert.NotContains(t, missing, parentID)

	b.handleUpdate(ctx, command(parentID, "/notifications ON"))
	assert.Contains(t, fake.drain()[0], "Reminders are on")
	u, err = users.GetByID(ctx, parentID)
	require.NoError(t, err)
	assert.True(t, u.NotificationEnabled)

	b.handleUpdate(ctx, command(parentID, "/notifications maybe"))
	assert.Contains(t, fake.drain()[0], "Usage: /notifications on|off")
}

func TestChildrenSwitchActive(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()
	children := database.NewChildRepository()

	b.handleUpdate(ctx, command(parentID, "/start"))
	b.handleUpdate(ctx, command(adminID, "/start"))
	b.handleUpdate(ctx, command(parentID, "/children"))
	b.handleUpdate(ctx, command(parentID, "/child Mia intense"))
	b.handleUpdate(ctx, command(parentID, "/child Leo defiant"))
	b.handleUpdate(ctx, command(adminID, "/child Ava distracted"))
	sent := fake.drain()
	assert.Contains(t, sent[2], "No children yet")

	b.handleUpdate(ctx, command(parentID, "/children"))
	fake.mu.Lock()
	require.Len(t, fake.sent, 1)
	listing := fake.sent[0]
	fake.mu.Unlock()
	fake.drain()
	assert.Contains(t, listing.Text, "Leo (DEFIANT) ⭐")
	assert.Contains(t, listing.Text, "Mia (INTENSE)\n")
	kb, ok := listing.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 2)

	list, err := children.ListByUser(ctx, parentID)
	require.NoError(t, err)
	var mia models.Child
	for _, c := range list {
		if c.Name == "Mia" {
			mia = c
		}
	}
	require.NotZero(t, mia.ID)

	b.handleUpdate(ctx, press(parentID, fmt.Sprintf("child:%d", mia.ID)))
	assert.Contains(t, fake.drain()[0], "Mia is now your active child")
	u, err := database.NewUserRepository().GetByID(ctx, parentID)
	require.NoError(t, err)
	require.NotNil(t, u.ActiveChildID)
	assert.Equal(t, mia.ID, *u.ActiveChildID)

	// another parent's child cannot be selected
	others, err := children.ListByUser(ctx, adminID)
	require.NoError(t, err)
	require.Len(t, others, 1)
	b.handleUpdate(ctx, press(parentID, fmt.Sprintf("child:%d", others[0].ID)))
	assert.Contains(t, fake.drain()[0], "Unknown child")
	u, err = database.NewUserRepository().GetByID(ctx, parentID)
	require.NoError(t, err)
	assert.Equal(t, mia.ID, *u.ActiveChildID)
}

type countingChecker struct {
	mu    sync.Mutex
	calls int
}

func (c *countingChecker) RunManualCheck(context.Context) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func TestCheckCommand(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(adminID, "/check"))
	assert.Contains(t, fake.drain()[0], "scheduler is disabled")

	checker := &countingChecker{}
	b.SetFollowUpChecker(checker)

	b.handleUpdate(ctx, command(parentID, "/check"))
	assert.Contains(t, fake.drain()[0], "only available for administrators")
	assert.Equal(t, 0, checker.calls)

	b.handleUpdate(ctx, command(adminID, "/check"))
	assert.Contains(t, fake.drain()[0], "Follow-up check finished")
	assert.Equal(t, 1, checker.calls)
}

// gatedRanker blocks until released so a test can supersede the evaluation
type gatedRanker struct {
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRanker) BestSOSScript(context.Context, sos.RankRequest) (int64, bool, error) {
	close(r.entered)
	<-r.release
	return 0, false, nil
}

func TestSupersededSOSStaysSilent(t *testing.T) {
	ranker := &gatedRanker{entered: make(chan struct{}), release: make(chan struct{})}
	b, fake := newTestBotWithRanker(t, ranker)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.handleUpdate(ctx, command(parentID, "/sos"))
	}()

	<-ranker.entered
	b.monitorFor(parentID).Dismiss()
	close(ranker.release)
	<-done

	assert.Empty(t, fake.drain())
	assert.False(t, b.monitorFor(parentID).State().IsSOS)
}

func TestStopWaitsForHandlers(t *testing.T) {
	b, _ := newTestBot(t)

	b.handlers.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Stop(ctx), context.DeadlineExceeded)

	b.handlers.Done()
	assert.NoError(t, b.Stop(context.Background()))
}
