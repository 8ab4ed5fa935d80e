// Package authflow drives the three-legged OAuth authorization-code flow
// that connects a chat user to their Google Calendar.
//
// Begin issues a state token bound to the user, stores it as the user's
// pending authorization and returns the consent URL. Complete is called by
// the HTTP callback: it consumes the pending authorization if and only if
// the returned state matches, then exchanges the code for a credential.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/teemow/calbot/internal/config"
	"github.com/teemow/calbot/internal/credentials"
	"github.com/teemow/calbot/internal/instrumentation"
	"github.com/teemow/calbot/internal/logging"
)

// Scopes requested from Google.
var Scopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/calendar.events",
}

// PendingStore is the part of the credential store the flow needs.
type PendingStore interface {
	SavePending(ctx context.Context, userID int64, pending *credentials.PendingAuthorization) error
	TakePending(ctx context.Context, userID int64, state string) (*credentials.PendingAuthorization, error)
}

// Settings are the OAuth client settings.
type Settings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

// SettingsFromConfig maps the runtime configuration onto Settings.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
		AuthURL:      cfg.GoogleAuthURI,
		TokenURL:     cfg.GoogleTokenURI,
	}
}

// OAuthConfig builds the oauth2 client configuration, falling back to
// Google's endpoints when none are set.
func (s Settings) OAuthConfig() *oauth2.Config {
	endpoint := oauth2.Endpoint{
		AuthURL:  "https://accounts.google.com/o/oauth2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
	}
	if s.AuthURL != "" {
		endpoint.AuthURL = s.AuthURL
	}
	if s.TokenURL != "" {
		endpoint.TokenURL = s.TokenURL
	}
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       Scopes,
	}
}

func (s Settings) missing() []string {
	var missing []string
	if s.ClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if s.ClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if s.RedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URI")
	}
	return missing
}

// Options configures a Controller.
type Options struct {
	Settings Settings
	Store    PendingStore

	// HTTPClient is used for the code exchange. Optional.
	HTTPClient *http.Client

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Controller runs the authorization flow.
type Controller struct {
	settings   Settings
	oauth      *oauth2.Config
	store      PendingStore
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// NewController creates a Controller. Missing client settings are reported
// by Begin, so a bot without OAuth configuration still starts.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		settings:   opts.Settings,
		oauth:      opts.Settings.OAuthConfig(),
		store:      opts.Store,
		httpClient: opts.HTTPClient,
		metrics:    opts.Metrics,
		logger:     logging.WithComponent(logger, "authflow"),
	}
}

// OAuthConfig returns the oauth2 configuration, shared with the token refresher.
func (c *Controller) OAuthConfig() *oauth2.Config {
	return c.oauth
}

// Begin starts an authorization for userID and returns the consent URL.
// Any earlier pending authorization for the user is replaced, so only the
// most recent URL can complete.
func (c *Controller) Begin(ctx context.Context, userID, chatID int64) (string, error) {
	if missing := c.settings.missing(); len(missing) > 0 {
		c.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageBegin, instrumentation.OAuthResultFailure)
		return "", &config.ConfigurationError{Missing: missing}
	}

	state, err := newState(userID)
	if err != nil {
		c.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageBegin, instrumentation.OAuthResultFailure)
		return "", err
	}

	if err := c.store.SavePending(ctx, userID, &credentials.PendingAuthorization{State: state, ChatID: chatID}); err != nil {
		c.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageBegin, instrumentation.OAuthResultFailure)
		return "", fmt.Errorf("save pending authorization: %w", err)
	}

	authURL := c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	c.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageBegin, instrumentation.OAuthResultSuccess)
	c.logger.Info("Authorization started", logging.User(userID), logging.Chat(chatID))
	return authURL, nil
}

// Complete finishes the authorization for userID.
//
// The pending authorization must exist and its state must equal
// receivedState exactly, otherwise a *StateMismatchError is returned and
// neither the provider nor the store is touched. On a match the pending
// authorization is consumed before the code is exchanged, so a replayed
// callback fails correlation. The caller persists the returned credential.
func (c *Controller) Complete(ctx context.Context, userID int64, receivedState, code string) (*credentials.Credential, error) {
	logger := logging.WithUser(c.logger, userID)

	if _, err := c.store.TakePending(ctx, userID, receivedState); err != nil {
		if errors.Is(err, credentials.ErrNoPending) || errors.Is(err, credentials.ErrStateMismatch) {
			c.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageComplete, instrumentation.OAuthResultMismatch)
			logger.Warn("Authorization state mismatch", logging.Err(err))
			return nil, &StateMismatchError{UserID: userID}
		}
		c.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageComplete, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("take pending authorization: %w", err)
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		c.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageComplete, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	cred := credentials.FromToken(token)
	if len(cred.Scopes) == 0 {
		cred.Scopes = Scopes
	}

	c.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthStageComplete, instrumentation.OAuthResultSuccess)
	logger.Info("Authorization completed",
		"access_token", logging.SanitizeToken(cred.AccessToken),
		"has_refresh_token", cred.RefreshToken != "",
	)
	return cred, nil
}
