// Package chat routes chat commands and free-text messages to the
// authorization flow and the calendar assistant.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/teemow/calbot/internal/config"
	"github.com/teemow/calbot/internal/credentials"
	"github.com/teemow/calbot/internal/instrumentation"
	"github.com/teemow/calbot/internal/logging"
)

// Bot replies.
const (
	ReplyStart = "I can help you manage your Google Calendar. Use /auth to connect your Google Account.\n\n" +
		"Once authorized, you can tell me things like:\n" +
		"- 'What's on my calendar tomorrow?'\n" +
		"- 'Schedule a meeting for Friday at 3 PM called Project Kickoff'"
	ReplyHelp = "Use /start to see introduction.\n" +
		"Use /auth to connect your Google Calendar.\n" +
		"Then, just send me messages in natural language to interact with your calendar."
	ReplyAuthConfig      = "Error: Authentication configuration is incomplete in environment variables."
	ReplyAuthFailed      = "An error occurred while starting the authentication process."
	ReplyAuthRequired    = "Please use the /auth command first (or again) to connect your Google Calendar."
	ReplyAssistantAbsent = "Sorry, the AI service is not available right now."
	ReplyDeliveryFailed  = "Sorry, I encountered an error trying to send you the result."

	authURLFormat = "Please click the link below to authorize access to your Google Calendar. " +
		"Make sure you are logged into the correct Google account in your browser.\n\n" +
		"%s\n\nAfter authorizing, I will notify you here."
)

// CredentialLoader returns the user's usable credential, or nil without one.
// *credentials.Store implements it.
type CredentialLoader interface {
	Load(ctx context.Context, userID int64) (*credentials.Credential, error)
}

// Authorizer starts an authorization. *authflow.Controller implements it.
type Authorizer interface {
	Begin(ctx context.Context, userID, chatID int64) (string, error)
}

// Responder answers free text. *assistant.Assistant implements it.
type Responder interface {
	Reply(ctx context.Context, userID int64, text string) string
}

// Options configures a Bot. Assistant may be nil when no model is configured.
type Options struct {
	Transport   Transport
	Credentials CredentialLoader
	Auth        Authorizer
	Assistant   Responder
	Metrics     *instrumentation.Metrics
	Logger      *slog.Logger
}

// Bot handles chat updates. Each update runs in its own goroutine.
type Bot struct {
	transport Transport
	creds     CredentialLoader
	auth      Authorizer
	assistant Responder
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewBot creates a Bot.
func NewBot(opts Options) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		transport: opts.Transport,
		creds:     opts.Credentials,
		auth:      opts.Auth,
		assistant: opts.Assistant,
		metrics:   opts.Metrics,
		logger:    logging.WithComponent(logger, "chat"),
	}
}

// Notify sends text to chatID. It lets the callback server reach the chat.
func (b *Bot) Notify(ctx context.Context, chatID int64, text string) error {
	return b.transport.Send(ctx, chatID, text)
}

// Run consumes updates until ctx is cancelled, then waits for in-flight
// handlers to finish.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.transport.Updates(ctx)
	if err != nil {
		return fmt.Errorf("receive updates: %w", err)
	}
	b.logger.Info("Chat loop started")

	for upd := range updates {
		b.wg.Add(1)
		go func(upd Update) {
			defer b.wg.Done()
			b.HandleUpdate(ctx, upd)
		}(upd)
	}

	b.wg.Wait()
	b.logger.Info("Chat loop stopped")
	return nil
}

// HandleUpdate processes one update. Panics are recovered and logged.
func (b *Bot) HandleUpdate(ctx context.Context, upd Update) {
	logger := b.logger.With(logging.RequestID(uuid.NewString()), logging.User(upd.UserID), logging.Chat(upd.ChatID))

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Panic while handling update", "panic", fmt.Sprint(rec))
		}
	}()

	if upd.Command != "" {
		b.metrics.RecordChatMessage(ctx, instrumentation.ChatKindCommand)
		logger.Debug("Received command", "command", upd.Command)
	} else {
		b.metrics.RecordChatMessage(ctx, instrumentation.ChatKindText)
		logger.Debug("Received message")
	}

	var replies []string
	switch upd.Command {
	case "start":
		replies = []string{greeting(upd.FirstName), ReplyStart}
	case "help":
		replies = []string{ReplyHelp}
	case "auth":
		replies = []string{b.handleAuth(ctx, logger, upd)}
	case "":
		replies = []string{b.handleText(ctx, logger, upd)}
	default:
		logger.Debug("Ignoring unknown command", "command", upd.Command)
		return
	}

	for _, reply := range replies {
		b.reply(ctx, logger, upd.ChatID, reply)
	}
}

// reply sends text and falls back to a short apology when delivery fails.
func (b *Bot) reply(ctx context.Context, logger *slog.Logger, chatID int64, text string) {
	err := b.transport.Send(ctx, chatID, text)
	if err == nil {
		return
	}
	logger.Warn("Failed to send reply", logging.Err(err), "length", len(text))
	if text == ReplyDeliveryFailed {
		return
	}
	if err := b.transport.Send(ctx, chatID, ReplyDeliveryFailed); err != nil {
		logger.Error("Failed to send delivery apology", logging.Err(err))
	}
}

func greeting(firstName string) string {
	if firstName == "" {
		return "Hi there!"
	}
	return "Hi " + firstName + "!"
}

func (b *Bot) handleAuth(ctx context.Context, logger *slog.Logger, upd Update) string {
	authURL, err := b.auth.Begin(ctx, upd.UserID, upd.ChatID)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			logger.Error("OAuth settings incomplete", "missing", cfgErr.Missing)
			return ReplyAuthConfig
		}
		logger.Error("Failed to start authorization", logging.Err(err))
		return ReplyAuthFailed
	}
	return fmt.Sprintf(authURLFormat, authURL)
}

func (b *Bot) handleText(ctx context.Context, logger *slog.Logger, upd Update) string {
	cred, err := b.creds.Load(ctx, upd.UserID)
	if err != nil {
		logger.Error("Failed to load credential", logging.Err(err))
		return ReplyAuthRequired
	}
	if cred == nil {
		logger.Info("No usable credential, prompting for /auth")
		return ReplyAuthRequired
	}

	if b.assistant == nil {
		logger.Error("Assistant not configured")
		return ReplyAssistantAbsent
	}
	return b.assistant.Reply(ctx, upd.UserID, upd.Text)
}
