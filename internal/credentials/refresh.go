package credentials

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)
}

// OAuthRefresher refreshes tokens against the configured token endpoint.
type OAuthRefresher struct {
	Config     *oauth2.Config
	HTTPClient *http.Client
}

// Refresh forces a refresh of token, ignoring its current expiry.
func (r *OAuthRefresher) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}

	// An expired copy makes the token source go to the endpoint.
	stale := &oauth2.Token{
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       time.Unix(1, 0),
	}
	newToken, err := r.Config.TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return newToken, nil
}

// isTokenExpired reports whether the credential has expired or will expire
// within threshold. A zero expiry never expires.
func isTokenExpired(cred *Credential, threshold time.Duration, now time.Time) bool {
	if cred.Expiry.IsZero() {
		return false
	}
	return now.Add(threshold).After(cred.Expiry)
}
