package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/nepbot/internal/excel"
	"github.com/example/nepbot/internal/feedback"
	"github.com/example/nepbot/internal/sos"
	"github.com/example/nepbot/internal/streak"
	"github.com/example/nepbot/pkg/models"
)

const apologyText = "❌ Something went wrong. Please try again in a moment."

// handleUpdate routes one update. Errors are logged and answered with an apology.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, b.config.HandlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while handling update", "update_id", update.UpdateID, "panic", r)
		}
	}()

	switch {
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		var err error
		switch {
		case msg.IsCommand():
			err = b.HandleCommand(ctx, msg)
		case msg.Document != nil && b.isAwaitingUpload(msg.Chat.ID):
			err = b.handleDocument(ctx, msg)
		case strings.TrimSpace(msg.Text) != "":
			err = b.handleText(ctx, msg)
		}
		if err != nil {
			b.log.Error("failed to handle message", "chat_id", msg.Chat.ID, "error", err)
			b.reply(msg.Chat.ID, apologyText)
		}
	case update.CallbackQuery != nil:
		if err := b.HandleCallback(ctx, update.CallbackQuery); err != nil {
			b.log.Error("failed to handle callback", "data", update.CallbackQuery.Data, "error", err)
			if update.CallbackQuery.Message != nil {
				b.reply(update.CallbackQuery.Message.Chat.ID, apologyText)
			}
		}
	}
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	switch message.Command() {
	case "start":
		return b.handleStart(ctx, message)
	case "help":
		b.reply(message.Chat.ID, helpText)
		return nil
	case "sos":
		return b.handleSOS(ctx, message)
	case "dismiss":
		b.monitorFor(message.Chat.ID).Dismiss()
		b.reply(message.Chat.ID, "OK, I'll stay quiet. Send /sos any time you need help.")
		return nil
	case "child":
		return b.handleChild(ctx, message)
	case "children":
		return b.handleChildren(ctx, message)
	case "notifications":
		return b.handleNotifications(ctx, message)
	case "stats":
		return b.handleStats(ctx, message)
	case "done":
		return b.handleDone(ctx, message)
	case "streak":
		return b.handleStreak(ctx, message)
	case "import":
		if !b.isAdmin(message.From.ID) {
			b.reply(message.Chat.ID, "This command is only available for administrators.")
			return nil
		}
		b.setAwaitingUpload(message.Chat.ID, true)
		b.reply(message.Chat.ID, "Send the script library as an .xlsx or .csv document.\nColumns: Title, Category, Profile, Situation, Emergency, Phrase 1-3, Action 1-3, Tip, Location.")
		return nil
	case "check":
		if !b.isAdmin(message.From.ID) {
			b.reply(message.Chat.ID, "This command is only available for administrators.")
			return nil
		}
		if b.checker == nil {
			b.reply(message.Chat.ID, "The scheduler is disabled.")
			return nil
		}
		b.checker.RunManualCheck(ctx)
		b.reply(message.Chat.ID, "Follow-up check finished.")
		return nil
	default:
		b.reply(message.Chat.ID, "Unknown command. Use /help to see what I can do.")
		return nil
	}
}

const helpText = `Available commands:
/sos - I need help right now
/dismiss - stop emergency suggestions for now
/child <name> <INTENSE|DISTRACTED|DEFIANT> - add your child
/children - switch the active child
/notifications on|off - feedback and tracker reminders
/stats - how your scripts are working
/done - mark today's practice as done
/streak - your practice streak

Or just tell me what's happening, e.g. "bedtime meltdown".`

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	user := &models.User{
		ID:                  message.From.ID,
		Username:            message.From.UserName,
		FirstName:           message.From.FirstName,
		NotificationEnabled: true,
	}
	if err := b.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}
	name := message.From.FirstName
	if name == "" {
		name = "there"
	}
	b.reply(message.Chat.ID, fmt.Sprintf("Hi %s! 👋 I help you find the right words in hard moments.\n\n%s", name, helpText))
	return nil
}

// activeChild returns the user's active child id, nil when none is set
func (b *Bot) activeChild(ctx context.Context, userID int64) (*int64, error) {
	user, err := b.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return user.ActiveChildID, nil
}

// evaluation is the outcome of running a chat's monitor once
type evaluation struct {
	State sos.State
	// Applied is false when a newer update or a dismissal superseded this one
	Applied bool
	// Shown reports whether an SOS card was sent
	Shown bool
}

// evaluate runs the chat's monitor and sends the SOS card when it should be shown.
// Background re-evaluations only render a card that differs from the one already shown.
func (b *Bot) evaluate(ctx context.Context, chatID int64, in sos.Input, background bool) evaluation {
	m := b.monitorFor(chatID)
	prev := m.State()
	state, applied := m.Update(ctx, in)
	ev := evaluation{State: state, Applied: applied}
	if !applied || !state.IsSOS {
		return ev
	}
	if background && prev.IsSOS && prev.Reason == state.Reason && prev.Script.ID == state.Script.ID {
		return ev
	}
	msg := tgbotapi.NewMessage(chatID, formatSOS(state))
	msg.ReplyMarkup = createKeyboard(scriptButtons(state.Script.ID, true))
	b.send(msg)
	ev.Shown = true
	return ev
}

func (b *Bot) handleSOS(ctx context.Context, message *tgbotapi.Message) error {
	childID, err := b.activeChild(ctx, message.From.ID)
	if err != nil {
		b.log.Warn("failed to load active child", "user_id", message.From.ID, "error", err)
	}
	in := sos.Input{
		UserID:      message.From.ID,
		ChildID:     childID,
		SearchQuery: message.CommandArguments(),
		CrisisMode:  true,
	}
	ev := b.evaluate(ctx, message.Chat.ID, in, false)
	if ev.Applied && !ev.State.IsSOS {
		b.reply(message.Chat.ID, "I don't have an emergency script yet. Take a breath: slow down, get low, and keep your voice quiet.")
	}
	return nil
}

// handleText treats free text as a search query
func (b *Bot) handleText(ctx context.Context, message *tgbotapi.Message) error {
	query := strings.TrimSpace(message.Text)
	childID, err := b.activeChild(ctx, message.From.ID)
	if err != nil {
		b.log.Warn("failed to load active child", "user_id", message.From.ID, "error", err)
	}
	in := sos.Input{UserID: message.From.ID, ChildID: childID, SearchQuery: query}
	ev := b.evaluate(ctx, message.Chat.ID, in, false)
	if ev.Shown || !ev.Applied {
		return nil
	}

	scripts, err := b.scripts.Search(ctx, query, b.config.SearchResultLimit)
	if err != nil {
		return err
	}
	b.reply(message.Chat.ID, formatSearchResults(query, scripts))
	for i := range scripts {
		msg := tgbotapi.NewMessage(message.Chat.ID, formatScript(&scripts[i]))
		msg.ReplyMarkup = createKeyboard(scriptButtons(scripts[i].ID, false))
		b.send(msg)
	}
	return nil
}

func (b *Bot) handleChild(ctx context.Context, message *tgbotapi.Message) error {
	args := strings.Fields(message.CommandArguments())
	if len(args) < 2 {
		b.reply(message.Chat.ID, "Usage: /child <name> <INTENSE|DISTRACTED|DEFIANT>")
		return nil
	}
	profile, ok := parseProfile(args[len(args)-1])
	if !ok {
		b.reply(message.Chat.ID, "Brain profile must be one of INTENSE, DISTRACTED or DEFIANT.")
		return nil
	}
	user, err := b.users.GetByID(ctx, message.From.ID)
	if err != nil {
		return err
	}
	if user == nil {
		b.reply(message.Chat.ID, "Please send /start first.")
		return nil
	}

	child := &models.Child{
		UserID:       user.ID,
		Name:         strings.Join(args[:len(args)-1], " "),
		BrainProfile: profile,
	}
	if err := b.children.Save(ctx, child); err != nil {
		return err
	}
	if err := b.users.SetActiveChild(ctx, user.ID, child.ID); err != nil {
		return err
	}
	b.reply(message.Chat.ID, fmt.Sprintf("👶 %s (%s) is now your active child. Suggestions will be tuned to this profile.", child.Name, child.BrainProfile))
	return nil
}

func (b *Bot) handleChildren(ctx context.Context, message *tgbotapi.Message) error {
	user, err := b.users.GetByID(ctx, message.From.ID)
	if err != nil {
		return err
	}
	if user == nil {
		b.reply(message.Chat.ID, "Please send /start first.")
		return nil
	}
	children, err := b.children.ListByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		b.reply(message.Chat.ID, "No children yet. Add one with /child <name> <profile>.")
		return nil
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, formatChildren(children, user.ActiveChildID))
	msg.ReplyMarkup = createKeyboard(childButtons(children))
	b.send(msg)
	return nil
}

func (b *Bot) handleNotifications(ctx context.Context, message *tgbotapi.Message) error {
	var enabled bool
	switch strings.ToLower(strings.TrimSpace(message.CommandArguments())) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		b.reply(message.Chat.ID, "Usage: /notifications on|off")
		return nil
	}
	user, err := b.users.GetByID(ctx, message.From.ID)
	if err != nil {
		return err
	}
	if user == nil {
		b.reply(message.Chat.ID, "Please send /start first.")
		return nil
	}
	if err := b.users.SetNotifications(ctx, user.ID, enabled); err != nil {
		return err
	}
	if enabled {
		b.reply(message.Chat.ID, "🔔 Reminders are on.")
	} else {
		b.reply(message.Chat.ID, "🔕 Reminders are off. Send /notifications on to turn them back on.")
	}
	return nil
}

func (b *Bot) handleStats(ctx context.Context, message *tgbotapi.Message) error {
	childID, err := b.activeChild(ctx, message.From.ID)
	if err != nil {
		b.log.Warn("failed to load active child", "user_id", message.From.ID, "error", err)
	}
	stats := b.feedback.StatsForAllScripts(ctx, message.From.ID, childID)
	titles := make(map[int64]string, len(stats))
	for id := range stats {
		s, err := b.scripts.GetByID(ctx, id)
		if err != nil {
			b.log.Warn("failed to load script", "script_id", id, "error", err)
			continue
		}
		if s != nil {
			titles[id] = s.Title
		}
	}
	b.reply(message.Chat.ID, formatStats(stats, titles))
	return nil
}

func (b *Bot) handleDone(ctx context.Context, message *tgbotapi.Message) error {
	now := time.Now().UTC()
	added, err := b.tracker.MarkDay(ctx, message.From.ID, now)
	if err != nil {
		return err
	}
	if !added {
		b.reply(message.Chat.ID, "Today is already marked as done. ✅")
		return nil
	}
	sum, _, err := b.streakFor(ctx, message.From.ID, now)
	if err != nil {
		return err
	}
	b.reply(message.Chat.ID, fmt.Sprintf("✅ Done for today! Current streak: %d", sum.Current))
	return nil
}

func (b *Bot) handleStreak(ctx context.Context, message *tgbotapi.Message) error {
	now := time.Now().UTC()
	sum, days, err := b.streakFor(ctx, message.From.ID, now)
	if err != nil {
		return err
	}
	weeks := streak.Month(days, now.Year(), now.Month(), now)
	b.reply(message.Chat.ID, formatStreak(sum, weeks, now))
	return nil
}

func (b *Bot) streakFor(ctx context.Context, userID int64, now time.Time) (streak.Summary, []time.Time, error) {
	rows, err := b.tracker.Days(ctx, userID)
	if err != nil {
		return streak.Summary{}, nil, err
	}
	days := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		d, err := time.Parse(models.DayLayout, r.Day)
		if err != nil {
			b.log.Warn("skipping malformed tracker day", "user_id", userID, "day", r.Day)
			continue
		}
		days = append(days, d)
	}
	return streak.Summarize(days, now), days, nil
}

// HandleCallback handles inline button presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback.Message == nil || callback.From == nil {
		return fmt.Errorf("invalid callback: required fields are missing")
	}

	// Always answer to remove the loading state
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.log.Warn("failed to answer callback", "error", err)
	}

	chatID := callback.Message.Chat.ID
	userID := callback.From.ID

	action, err := parseCallback(callback.Data)
	if err != nil {
		b.log.Warn("ignoring callback", "error", err)
		b.reply(chatID, "⚠️ Unknown action")
		return nil
	}

	switch action.Kind {
	case callbackDismiss:
		b.monitorFor(chatID).Dismiss()
		b.reply(chatID, "OK, I'll stay quiet. Send /sos any time you need help.")
		return nil

	case callbackChild:
		child, err := b.children.GetByID(ctx, action.ChildID)
		if err != nil {
			return err
		}
		if child == nil || child.UserID != userID {
			b.reply(chatID, "⚠️ Unknown child")
			return nil
		}
		if err := b.users.SetActiveChild(ctx, userID, child.ID); err != nil {
			return err
		}
		b.reply(chatID, fmt.Sprintf("👶 %s is now your active child.", child.Name))
		return nil

	case callbackUsed:
		ev := &models.ScriptUsageEvent{UserID: userID, ScriptID: action.ScriptID, UsedAt: time.Now()}
		if err := b.usage.Create(ctx, ev); err != nil {
			return err
		}
		b.reply(chatID, "👍 Noted. Let me know how it went.")
		b.evaluate(ctx, chatID, sos.Input{UserID: userID}, true)
		return nil

	case callbackFeedback:
		childID, err := b.activeChild(ctx, userID)
		if err != nil {
			b.log.Warn("failed to load active child", "user_id", userID, "error", err)
		}
		ev := &models.ScriptFeedbackEvent{
			UserID:   userID,
			ChildID:  childID,
			ScriptID: action.ScriptID,
			Outcome:  action.Outcome,
		}
		if err := b.feedback.Submit(ctx, ev); err != nil {
			if errors.Is(err, feedback.ErrInvalidOutcome) {
				b.reply(chatID, "⚠️ Unknown outcome")
				return nil
			}
			return err
		}

		if ev := b.evaluate(ctx, chatID, sos.Input{UserID: userID, ChildID: childID}, true); ev.Shown {
			return nil
		}
		st := b.feedback.StatsForScript(ctx, userID, action.ScriptID, childID)
		b.reply(chatID, fmt.Sprintf("Thanks! This script has worked %.0f%% of the time (%d tries).", st.SuccessRate, st.TotalCount))
		return nil
	}
	return nil
}

// handleDocument downloads an uploaded script library and imports it
func (b *Bot) handleDocument(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	doc := message.Document
	b.setAwaitingUpload(chatID, false)

	ext := strings.ToLower(filepath.Ext(doc.FileName))
	if ext != ".xlsx" && ext != ".csv" {
		b.reply(chatID, "Please send an .xlsx or .csv file. Use /import to try again.")
		return nil
	}
	if int64(doc.FileSize) > b.config.MaxImportBytes {
		b.reply(chatID, "That file is too large.")
		return nil
	}

	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		return fmt.Errorf("failed to resolve file url: %w", err)
	}
	path, err := b.download(ctx, url, ext)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	cfg := excel.DefaultImportConfig()
	cfg.FilePath = path
	result, err := excel.ImportScripts(ctx, b.scripts, cfg)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Import failed: %v", err))
		return nil
	}
	b.log.Info("script library imported", "user_id", message.From.ID, "created", result.Created, "updated", result.Updated, "skipped", result.Skipped)
	b.reply(chatID, formatImportResult(result))
	return nil
}

// download stores url in a temp file with the given extension and returns its path
func (b *Bot) download(ctx context.Context, url, ext string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp("", "scripts-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, io.LimitReader(resp.Body, b.config.MaxImportBytes)); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return f.Name(), nil
}
