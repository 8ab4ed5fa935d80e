package credentials

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const recordVersion = 1

// Credential is a user's OAuth credential for the calendar provider.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// FromToken converts an oauth2 token into a Credential. Granted scopes are
// taken from the token response's "scope" field when present.
func FromToken(tok *oauth2.Token) *Credential {
	if tok == nil {
		return nil
	}
	cred := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		cred.Scopes = strings.Fields(scope)
	}
	return cred
}

// Token returns the credential as an oauth2 token.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// PendingAuthorization is an authorization started by /auth and not yet
// completed by the callback.
type PendingAuthorization struct {
	State     string    `json:"state"`
	ChatID    int64     `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}

// record is the persisted per-user document.
type record struct {
	Version    int                   `json:"version"`
	UserID     int64                 `json:"user_id"`
	Credential *Credential           `json:"credential,omitempty"`
	Pending    *PendingAuthorization `json:"pending,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

func (r *record) empty() bool {
	return r.Credential == nil && r.Pending == nil
}
