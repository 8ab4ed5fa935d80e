package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTelegram(t *testing.T) {
	chat := &tgbotapi.Chat{ID: 22}
	from := &tgbotapi.User{ID: 11, FirstName: "Ada"}

	tests := []struct {
		name   string
		update tgbotapi.Update
		want   Update
		ok     bool
	}{
		{
			name: "command",
			update: tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
				Chat: chat, From: from, Text: "/auth",
				Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
			}},
			want: Update{ID: 1, ChatID: 22, UserID: 11, Text: "/auth", Command: "auth", FirstName: "Ada"},
			ok:   true,
		},
		{
			name: "command addressed to the bot",
			update: tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{
				Chat: chat, From: from, Text: "/help@calbot",
				Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 12}},
			}},
			want: Update{ID: 2, ChatID: 22, UserID: 11, Text: "/help@calbot", Command: "help", FirstName: "Ada"},
			ok:   true,
		},
		{
			name: "free text",
			update: tgbotapi.Update{UpdateID: 3, Message: &tgbotapi.Message{
				Chat: chat, From: from, Text: "What's on tomorrow?",
			}},
			want: Update{ID: 3, ChatID: 22, UserID: 11, Text: "What's on tomorrow?", FirstName: "Ada"},
			ok:   true,
		},
		{
			name:   "no message",
			update: tgbotapi.Update{UpdateID: 4},
		},
		{
			name: "no text",
			update: tgbotapi.Update{UpdateID: 5, Message: &tgbotapi.Message{
				Chat: chat, From: from,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fromTelegram(tt.update)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitMessage(t *testing.T) {
	t.Run("short text is one piece", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, splitMessage("hello", 10))
	})

	t.Run("cuts at the last newline", func(t *testing.T) {
		got := splitMessage("aaaa\nbbbb\ncccc", 10)
		assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, got)
	})

	t.Run("hard cut without newline", func(t *testing.T) {
		got := splitMessage(strings.Repeat("x", 25), 10)
		assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, got)
	})

	t.Run("never splits a rune", func(t *testing.T) {
		got := splitMessage(strings.Repeat("é", 7), 3)
		require.Len(t, got, 3)
		for _, chunk := range got {
			assert.True(t, utf8.ValidString(chunk))
		}
		assert.Equal(t, strings.Repeat("é", 7), strings.Join(got, ""))
	})
}

func TestSplitMessage_LongEventList(t *testing.T) {
	var b strings.Builder
	b.WriteString("Executed Actions:\nTool: list_calendar_events\nResult:\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "{\n  \"summary\": \"Standup %d\",\n  \"start\": \"2031-03-%02dT09:00:00Z\",\n  \"location\": \"Room 4\"\n}\n", i, i%28+1)
	}
	text := b.String()
	require.Greater(t, utf8.RuneCountInString(text), MaxMessageLength)

	chunks := splitMessage(text, MaxMessageLength)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), MaxMessageLength)
		assert.NotEmpty(t, chunk)
	}
	assert.Equal(t, strings.ReplaceAll(text, "\n", ""), strings.ReplaceAll(strings.Join(chunks, ""), "\n", ""))
}

// botAPI is a minimal Bot API endpoint that accepts getMe and sendMessage.
type botAPI struct {
	mu    sync.Mutex
	texts []string
	limit int
}

func (a *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"calbot","username":"calbot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		_ = r.ParseForm()
		text := r.PostForm.Get("text")
		if utf8.RuneCountInString(text) > a.limit {
			_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: message is too long"}`)
			return
		}
		a.mu.Lock()
		a.texts = append(a.texts, text)
		a.mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":22,"type":"private"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func TestTelegramTransport_SendSplitsLongText(t *testing.T) {
	api := &botAPI{limit: MaxMessageLength}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	transport, err := newTelegramTransport("test-token", srv.URL+"/bot%s/%s", srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	long := strings.Repeat(strings.Repeat("a", 99)+"\n", 100)
	require.NoError(t, transport.Send(context.Background(), 22, long))

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.texts, 3)
	for _, text := range api.texts {
		assert.LessOrEqual(t, utf8.RuneCountInString(text), MaxMessageLength)
	}
	assert.Equal(t, long, strings.Join(api.texts, "\n"))
}

func TestTelegramTransport_SendReportsRejection(t *testing.T) {
	api := &botAPI{limit: 5}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	transport, err := newTelegramTransport("test-token", srv.URL+"/bot%s/%s", srv.Client(), nil)
	require.NoError(t, err)

	err = transport.Send(context.Background(), 22, "far too long")
	assert.ErrorContains(t, err, "message is too long")
}
