package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/teemow/calbot/internal/authflow"
	"github.com/teemow/calbot/internal/credentials"
	"github.com/teemow/calbot/internal/instrumentation"
	"github.com/teemow/calbot/internal/logging"
)

// Chat messages sent by the callback.
const (
	MessageAuthSuccess  = "✅ Google Calendar authentication successful! You can now use calendar commands."
	MessageAuthMismatch = "Authentication failed (state mismatch). Please try /auth again."
	MessageAuthFailed   = "An error occurred during authentication. Please try /auth again later."
)

// Browser pages rendered by the callback.
const (
	pageOAuthError     = "OAuth Error: %s. Please try /auth again."
	pageInvalidRequest = "Error: Invalid callback request."
	pageInvalidState   = "Error: Invalid state parameter."
	pageStateMismatch  = "Error: State mismatch. Please try authenticating again."
	pageSuccess        = "Authentication successful! You can close this window and return to Telegram."
	pageInternalError  = "An internal error occurred during authentication. Please try again later."
)

var pageTemplate = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>calbot</title></head>
<body><p>{{.}}</p></body>
</html>
`))

// Notifier delivers a text message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// CallbackStore is the part of the credential store the callback uses.
type CallbackStore interface {
	PeekPending(ctx context.Context, userID int64) (*credentials.PendingAuthorization, error)
	Save(ctx context.Context, userID int64, cred *credentials.Credential) error
}

// Completer finishes a pending authorization. *authflow.Controller implements it.
type Completer interface {
	Complete(ctx context.Context, userID int64, receivedState, code string) (*credentials.Credential, error)
}

// CallbackOptions configures a CallbackHandler.
type CallbackOptions struct {
	Store    CallbackStore
	Flow     Completer
	Notifier Notifier
	Metrics  *instrumentation.Metrics
	Logger   *slog.Logger
}

// CallbackHandler serves the OAuth redirect target.
type CallbackHandler struct {
	store    CallbackStore
	flow     Completer
	notifier Notifier
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(opts CallbackOptions) *CallbackHandler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackHandler{
		store:    opts.Store,
		flow:     opts.Flow,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   logging.WithComponent(logger, "callback"),
	}
}

// ServeHTTP implements http.Handler.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	var chatID int64

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Panic in callback handler", "panic", fmt.Sprint(rec))
			h.fail(ctx, w, chatID)
		}
	}()

	query := r.URL.Query()

	if oauthErr := query.Get("error"); oauthErr != "" {
		h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageCallback, instrumentation.OAuthResultDenied)
		h.logger.Warn("Authorization denied by provider", "oauth_error", oauthErr)
		h.render(w, http.StatusOK, fmt.Sprintf(pageOAuthError, oauthErr))
		return
	}

	state, code := query.Get("state"), query.Get("code")
	if state == "" || code == "" {
		h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageCallback, instrumentation.OAuthResultFailure)
		h.render(w, http.StatusBadRequest, pageInvalidRequest)
		return
	}

	userID, err := authflow.ParseState(state)
	if err != nil {
		h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageCallback, instrumentation.OAuthResultFailure)
		h.logger.Warn("Malformed state parameter", logging.Err(err))
		h.render(w, http.StatusBadRequest, pageInvalidState)
		return
	}
	logger := logging.WithUser(h.logger, userID)

	// Complete consumes the pending authorization, so the chat to notify is
	// read first.
	pending, err := h.store.PeekPending(ctx, userID)
	switch {
	case err == nil:
		chatID = pending.ChatID
	case errors.Is(err, credentials.ErrNoPending):
	default:
		logger.Warn("Failed to read pending authorization", logging.Err(err))
	}

	cred, err := h.flow.Complete(ctx, userID, state, code)
	if err != nil {
		var mismatch *authflow.StateMismatchError
		if errors.As(err, &mismatch) {
			h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageCallback, instrumentation.OAuthResultMismatch)
			h.notify(ctx, chatID, MessageAuthMismatch)
			h.render(w, http.StatusOK, pageStateMismatch)
			return
		}
		logger.Error("Authorization exchange failed", logging.Err(err))
		h.fail(ctx, w, chatID)
		return
	}

	if err := h.store.Save(ctx, userID, cred); err != nil {
		logger.Error("Failed to store credential", logging.Err(err))
		h.fail(ctx, w, chatID)
		return
	}

	h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageCallback, instrumentation.OAuthResultSuccess)
	logger.Info("Credential stored", logging.Chat(chatID))
	h.notify(ctx, chatID, MessageAuthSuccess)
	h.render(w, http.StatusOK, pageSuccess)
}

func (h *CallbackHandler) fail(ctx context.Context, w http.ResponseWriter, chatID int64) {
	h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageCallback, instrumentation.OAuthResultFailure)
	h.notify(ctx, chatID, MessageAuthFailed)
	h.render(w, http.StatusInternalServerError, pageInternalError)
}

// notify is best effort; a zero chat id means no chat is known.
func (h *CallbackHandler) notify(ctx context.Context, chatID int64, text string) {
	if chatID == 0 || h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(ctx, chatID, text); err != nil {
		h.logger.Warn("Failed to notify chat", logging.Chat(chatID), logging.Err(err))
	}
}

func (h *CallbackHandler) render(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, message); err != nil {
		h.logger.Warn("Failed to render callback page", logging.Err(err))
	}
}
