package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calbot/internal/config"
	"github.com/teemow/calbot/internal/credentials"
)

const (
	testUser = int64(11)
	testChat = int64(22)
)

type sent struct {
	ChatID int64
	Text   string
}

type fakeTransport struct {
	updates chan Update
	mu      sync.Mutex
	sent    []sent
	sendErr error

	// rejectOver fails sends longer than this many bytes when positive.
	rejectOver int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{updates: make(chan Update)}
}

func (f *fakeTransport) Updates(ctx context.Context) (<-chan Update, error) {
	out := make(chan Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-f.updates:
				out <- u
			}
		}
	}()
	return out, nil
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectOver > 0 && len(text) > f.rejectOver {
		return errors.New("message is too long")
	}
	f.sent = append(f.sent, sent{ChatID: chatID, Text: text})
	return f.sendErr
}

func (f *fakeTransport) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeLoader struct {
	cred *credentials.Credential
	err  error
}

func (f *fakeLoader) Load(context.Context, int64) (*credentials.Credential, error) {
	return f.cred, f.err
}

type fakeAuthorizer struct {
	url    string
	err    error
	userID int64
	chatID int64
}

func (f *fakeAuthorizer) Begin(_ context.Context, userID, chatID int64) (string, error) {
	f.userID, f.chatID = userID, chatID
	return f.url, f.err
}

type fakeResponder struct {
	reply string
	texts []string
	panic bool
}

func (f *fakeResponder) Reply(_ context.Context, _ int64, text string) string {
	if f.panic {
		panic("model exploded")
	}
	f.texts = append(f.texts, text)
	return f.reply
}

func authorized() *fakeLoader {
	return &fakeLoader{cred: &credentials.Credential{AccessToken: "at", Expiry: time.Now().Add(time.Hour)}}
}

func command(name string) Update {
	return Update{ChatID: testChat, UserID: testUser, Text: "/" + name, Command: name}
}

func text(s string) Update {
	return Update{ChatID: testChat, UserID: testUser, Text: s}
}

func TestHandleUpdate_StartAndHelp(t *testing.T) {
	transport := newFakeTransport()
	bot := NewBot(Options{Transport: transport, Credentials: &fakeLoader{}, Auth: &fakeAuthorizer{}})

	start := command("start")
	start.FirstName = "Ada"
	bot.HandleUpdate(context.Background(), start)
	bot.HandleUpdate(context.Background(), command("help"))

	assert.Equal(t, []sent{
		{testChat, "Hi Ada!"},
		{testChat, ReplyStart},
		{testChat, ReplyHelp},
	}, transport.messages())
}

func TestHandleUpdate_StartWithoutName(t *testing.T) {
	transport := newFakeTransport()
	bot := NewBot(Options{Transport: transport, Credentials: &fakeLoader{}, Auth: &fakeAuthorizer{}})

	bot.HandleUpdate(context.Background(), command("start"))

	assert.Equal(t, []sent{{testChat, "Hi there!"}, {testChat, ReplyStart}}, transport.messages())
}

func TestHandleUpdate_Auth(t *testing.T) {
	transport := newFakeTransport()
	auth := &fakeAuthorizer{url: "https://accounts.example.com/auth?state=s"}
	bot := NewBot(Options{Transport: transport, Credentials: &fakeLoader{}, Auth: auth})

	bot.HandleUpdate(context.Background(), command("auth"))

	msgs := transport.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "\n\nhttps://accounts.example.com/auth?state=s\n\n")
	assert.True(t, strings.HasSuffix(msgs[0].Text, "After authorizing, I will notify you here."))
	assert.Equal(t, testUser, auth.userID)
	assert.Equal(t, testChat, auth.chatID)
}

func TestHandleUpdate_AuthErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "missing settings", err: &config.ConfigurationError{Missing: []string{"GOOGLE_CLIENT_ID"}}, want: ReplyAuthConfig},
		{name: "storage failure", err: errors.New("disk full"), want: ReplyAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			bot := NewBot(Options{Transport: transport, Credentials: &fakeLoader{}, Auth: &fakeAuthorizer{err: tt.err}})

			bot.HandleUpdate(context.Background(), command("auth"))

			assert.Equal(t, []sent{{testChat, tt.want}}, transport.messages())
		})
	}
}

func TestHandleUpdate_TextWithoutCredential(t *testing.T) {
	for _, loader := range []*fakeLoader{{}, {err: errors.New("backend down")}} {
		transport := newFakeTransport()
		responder := &fakeResponder{reply: "never"}
		bot := NewBot(Options{Transport: transport, Credentials: loader, Auth: &fakeAuthorizer{}, Assistant: responder})

		bot.HandleUpdate(context.Background(), text("what's tomorrow?"))

		assert.Equal(t, []sent{{testChat, ReplyAuthRequired}}, transport.messages())
		assert.Empty(t, responder.texts)
	}
}

func TestHandleUpdate_TextWithoutAssistant(t *testing.T) {
	transport := newFakeTransport()
	bot := NewBot(Options{Transport: transport, Credentials: authorized(), Auth: &fakeAuthorizer{}})

	bot.HandleUpdate(context.Background(), text("what's tomorrow?"))

	assert.Equal(t, []sent{{testChat, ReplyAssistantAbsent}}, transport.messages())
}

func TestHandleUpdate_TextToAssistant(t *testing.T) {
	transport := newFakeTransport()
	responder := &fakeResponder{reply: "Executed Actions:\n..."}
	bot := NewBot(Options{Transport: transport, Credentials: authorized(), Auth: &fakeAuthorizer{}, Assistant: responder})

	bot.HandleUpdate(context.Background(), text("what's tomorrow?"))

	assert.Equal(t, []string{"what's tomorrow?"}, responder.texts)
	assert.Equal(t, []sent{{testChat, "Executed Actions:\n..."}}, transport.messages())
}

func TestHandleUpdate_UndeliverableReplyApologizes(t *testing.T) {
	transport := newFakeTransport()
	transport.rejectOver = 200
	responder := &fakeResponder{reply: "Executed Actions:\n" + strings.Repeat("{\"summary\": \"Standup\"}\n", 50)}
	bot := NewBot(Options{Transport: transport, Credentials: authorized(), Auth: &fakeAuthorizer{}, Assistant: responder})

	bot.HandleUpdate(context.Background(), text("what's this month?"))

	assert.Equal(t, []sent{{testChat, ReplyDeliveryFailed}}, transport.messages())
}

func TestHandleUpdate_ApologyNotRetried(t *testing.T) {
	transport := newFakeTransport()
	transport.sendErr = errors.New("chat not found")
	bot := NewBot(Options{Transport: transport, Credentials: &fakeLoader{}, Auth: &fakeAuthorizer{}})

	bot.HandleUpdate(context.Background(), command("help"))

	// One failed reply, one failed apology, then it gives up.
	assert.Equal(t, []sent{{testChat, ReplyHelp}, {testChat, ReplyDeliveryFailed}}, transport.messages())
}

func TestHandleUpdate_UnknownCommandIgnored(t *testing.T) {
	transport := newFakeTransport()
	bot := NewBot(Options{Transport: transport, Credentials: authorized(), Auth: &fakeAuthorizer{}})

	bot.HandleUpdate(context.Background(), command("weather"))

	assert.Empty(t, transport.messages())
}

func TestHandleUpdate_PanicRecovered(t *testing.T) {
	transport := newFakeTransport()
	bot := NewBot(Options{Transport: transport, Credentials: authorized(), Auth: &fakeAuthorizer{}, Assistant: &fakeResponder{panic: true}})

	assert.NotPanics(t, func() {
		bot.HandleUpdate(context.Background(), text("boom"))
	})
	assert.Empty(t, transport.messages())
}

func TestRun_ProcessesUntilCancelled(t *testing.T) {
	transport := newFakeTransport()
	bot := NewBot(Options{Transport: transport, Credentials: &fakeLoader{}, Auth: &fakeAuthorizer{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	transport.updates <- command("start")
	transport.updates <- command("help")

	require.Eventually(t, func() bool { return len(transport.messages()) == 3 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNotify(t *testing.T) {
	transport := newFakeTransport()
	bot := NewBot(Options{Transport: transport})

	require.NoError(t, bot.Notify(context.Background(), 99, "hello"))
	assert.Equal(t, []sent{{99, "hello"}}, transport.messages())

	transport.sendErr = errors.New("blocked")
	assert.Error(t, bot.Notify(context.Background(), 99, "hello"))
}
