package bot

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/nepbot/internal/database"
	"github.com/example/nepbot/internal/feedback"
	"github.com/example/nepbot/internal/logger"
	"github.com/example/nepbot/internal/sos"
)

// sender is the subset of the Telegram API used by the bot
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// FollowUpChecker runs the feedback follow-up job on demand
type FollowUpChecker interface {
	RunManualCheck(ctx context.Context)
}

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// Bot represents the Telegram bot application
type Bot struct {
	api      sender
	token    string
	config   *BotConfig
	log      *logger.Logger
	detector *sos.Detector
	feedback *feedback.Aggregator

	users    *database.UserRepository
	children *database.ChildRepository
	scripts  *database.ScriptRepository
	usage    *database.UsageRepository
	tracker  *database.TrackerRepository

	adminUserIDs map[int64]bool
	checker      FollowUpChecker

	// in-flight update handlers
	handlers sync.WaitGroup

	mu                 sync.Mutex
	monitors           map[int64]*sos.Monitor
	awaitingFileUpload map[int64]bool
	updates            tgbotapi.UpdatesChannel
	stopUpdates        func()
}

// New creates a new bot instance
func New(token string, detector *sos.Detector, aggregator *feedback.Aggregator, adminUserIDs map[int64]bool, log *logger.Logger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	if database.DB == nil {
		return nil, fmt.Errorf("database connection is not established")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if adminUserIDs == nil {
		adminUserIDs = make(map[int64]bool)
	}

	return &Bot{
		token:              token,
		config:             DefaultConfig(),
		log:                log.With("component", "bot"),
		detector:           detector,
		feedback:           aggregator,
		users:              database.NewUserRepository(),
		children:           database.NewChildRepository(),
		scripts:            database.NewScriptRepository(),
		usage:              database.NewUsageRepository(),
		tracker:            database.NewTrackerRepository(),
		adminUserIDs:       adminUserIDs,
		monitors:           make(map[int64]*sos.Monitor),
		awaitingFileUpload: make(map[int64]bool),
	}, nil
}

// SetFollowUpChecker enables the admin /check command
func (b *Bot) SetFollowUpChecker(c FollowUpChecker) {
	b.checker = c
}

// Connect authorizes against the Telegram API. Start calls it when needed.
func (b *Bot) Connect() error {
	if b.api != nil {
		return nil
	}
	botAPI, err := tgbotapi.NewBotAPI(b.token)
	if err != nil {
		return fmt.Errorf("unable to create bot: %w", err)
	}
	b.api = botAPI
	b.stopUpdates = botAPI.StopReceivingUpdates
	b.log.Info("authorized on account", "username", botAPI.Self.UserName)
	return nil
}

// Start receives updates until ctx is cancelled. Each update is handled on its own goroutine
// with a context that outlives ctx, so Stop can let in-flight handlers finish.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.Connect(); err != nil {
		return err
	}
	botAPI, ok := b.api.(*tgbotapi.BotAPI)
	if !ok {
		return fmt.Errorf("bot is not connected to the Telegram API")
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.config.UpdateTimeout
	updates := botAPI.GetUpdatesChan(updateConfig)
	handlerCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handlers.Add(1)
			go func(update tgbotapi.Update) {
				defer b.handlers.Done()
				b.handleUpdate(handlerCtx, update)
			}(update)
		}
	}
}

// Stop stops receiving updates and waits for in-flight handlers until ctx expires
func (b *Bot) Stop(ctx context.Context) error {
	if b.stopUpdates != nil {
		b.stopUpdates()
	}

	done := make(chan struct{})
	go func() {
		b.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.log.Info("bot stopped")
		return nil
	case <-ctx.Done():
		b.log.Warn("bot stopped with handlers still running")
		return ctx.Err()
	}
}

// isAdmin checks if a user is an admin
func (b *Bot) isAdmin(userID int64) bool {
	return b.adminUserIDs[userID]
}

// monitorFor returns the SOS monitor of a chat, creating it on first use
func (b *Bot) monitorFor(chatID int64) *sos.Monitor {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.monitors[chatID]
	if !ok {
		m = sos.NewMonitor(b.detector)
		log := b.log.With("chat_id", chatID)
		m.OnChange(func(s sos.State) {
			if s.IsSOS {
				log.Info("sos state raised", "reason", s.Reason, "script_id", s.Script.ID)
			} else {
				log.Debug("sos state cleared")
			}
		})
		b.monitors[chatID] = m
	}
	return m
}

func (b *Bot) setAwaitingUpload(chatID int64, v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v {
		b.awaitingFileUpload[chatID] = true
	} else {
		delete(b.awaitingFileUpload, chatID)
	}
}

func (b *Bot) isAwaitingUpload(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.awaitingFileUpload[chatID]
}

// send delivers a message and logs failures
func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Warn("failed to send message", "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

// SendFeedbackPrompt implements the scheduler.Notifier interface
func (b *Bot) SendFeedbackPrompt(userID, scriptID int64, scriptTitle string) error {
	// private chats share the user's ID
	msg := tgbotapi.NewMessage(userID, fmt.Sprintf("How did \"%s\" go?", scriptTitle))
	msg.ReplyMarkup = createKeyboard(feedbackButtons(scriptID))
	_, err := b.api.Send(msg)
	return err
}

// SendTrackerReminder implements the scheduler.Notifier interface
func (b *Bot) SendTrackerReminder(userID int64) error {
	msg := tgbotapi.NewMessage(userID, "You haven't checked in today. Send /done after your practice to keep your streak going.")
	_, err := b.api.Send(msg)
	return err
}
