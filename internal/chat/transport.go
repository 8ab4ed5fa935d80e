package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/teemow/calbot/internal/logging"
)

// Update is one inbound chat message.
type Update struct {
	ID     int
	ChatID int64
	UserID int64
	Text   string

	// FirstName is the sender's display name, possibly empty.
	FirstName string

	// Command is the command name without the slash, empty for free text.
	Command string
}

// Transport connects the bot to a chat service.
type Transport interface {
	// Updates streams inbound messages until ctx is cancelled, then closes
	// the channel.
	Updates(ctx context.Context) (<-chan Update, error)
	Send(ctx context.Context, chatID int64, text string) error
}

const (
	telegramPollTimeout = 60

	// MaxMessageLength is the Bot API limit on message text, in characters.
	MaxMessageLength = 4096
)

// TelegramTransport is a long-polling Telegram Bot API transport.
type TelegramTransport struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewTelegramTransport authenticates token against the Bot API.
// A nil httpClient uses http.DefaultClient.
func NewTelegramTransport(token string, httpClient *http.Client, logger *slog.Logger) (*TelegramTransport, error) {
	return newTelegramTransport(token, tgbotapi.APIEndpoint, httpClient, logger)
}

func newTelegramTransport(token, endpoint string, httpClient *http.Client, logger *slog.Logger) (*TelegramTransport, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	logger = logging.WithComponent(logger, "telegram")
	logger.Info("Authorized on Telegram", "bot", api.Self.UserName)
	return &TelegramTransport{api: api, logger: logger}, nil
}

// Updates implements Transport.
func (t *TelegramTransport) Updates(ctx context.Context) (<-chan Update, error) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = telegramPollTimeout
	cfg.AllowedUpdates = []string{"message"}
	src := t.api.GetUpdatesChan(cfg)

	out := make(chan Update)
	go func() {
		defer close(out)
		defer t.api.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-src:
				if !ok {
					return
				}
				upd, ok := fromTelegram(u)
				if !ok {
					continue
				}
				select {
				case out <- upd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func fromTelegram(u tgbotapi.Update) (Update, bool) {
	msg := u.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.Text == "" {
		return Update{}, false
	}
	upd := Update{
		ID:     u.UpdateID,
		ChatID: msg.Chat.ID,
		UserID: msg.From.ID,
		Text:   msg.Text,

		FirstName: msg.From.FirstName,
	}
	if msg.IsCommand() {
		upd.Command = msg.Command()
	}
	return upd, true
}

// Send implements Transport. Text longer than MaxMessageLength goes out as
// several messages. Telegram calls are not cancellable once sent.
func (t *TelegramTransport) Send(ctx context.Context, chatID int64, text string) error {
	chunks := splitMessage(text, MaxMessageLength)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, chunk)
		if _, err := t.api.Send(msg); err != nil {
			return fmt.Errorf("send telegram message part %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// splitMessage cuts text into pieces of at most limit runes. Cuts prefer the
// last newline in a piece and never split a rune.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		// Byte offset just past the limit-th rune.
		end, n := 0, 0
		for end < len(text) && n < limit {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
			n++
		}

		cut := end
		if nl := strings.LastIndexByte(text[:end], '\n'); nl > 0 {
			cut = nl + 1
		}
		if chunk := strings.TrimRight(text[:cut], "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
