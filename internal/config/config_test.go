package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TELEGRAM_BOT_TOKEN", "OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_PROJECT_ID",
		"GOOGLE_AUTH_URI", "GOOGLE_TOKEN_URI", "GOOGLE_REDIRECT_URI",
		"TOKEN_STORAGE_DIR", "CREDENTIAL_STORE", "CREDENTIAL_ENCRYPTION_KEY",
		"VALKEY_URL", "VALKEY_DB", "VALKEY_KEY_PREFIX",
		"HTTP_TIMEOUT", "TOKEN_REFRESH_THRESHOLD", "METRICS_ENABLED", "METRICS_ADDR",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	// Keep godotenv from picking up a developer's .env file.
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.OpenAIModel)
	assert.Equal(t, "https://accounts.google.com/o/oauth2/auth", cfg.GoogleAuthURI)
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.GoogleTokenURI)
	assert.Equal(t, "http://localhost:8080/callback", cfg.GoogleRedirectURI)
	assert.Equal(t, StoreFile, cfg.CredentialStore)
	assert.Equal(t, DefaultStorageDir(), cfg.TokenStorageDir)
	assert.Equal(t, "calbot:", cfg.Valkey.KeyPrefix)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, time.Minute, cfg.TokenRefreshThreshold)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.False(t, cfg.OAuthConfigured())
	assert.False(t, cfg.AssistantConfigured())
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("GOOGLE_CLIENT_ID", "client")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("TOKEN_STORAGE_DIR", "/var/lib/calbot")
	t.Setenv("CREDENTIAL_STORE", "valkey")
	t.Setenv("VALKEY_URL", "valkey:6379")
	t.Setenv("VALKEY_DB", "3")
	t.Setenv("HTTP_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "tg-token", cfg.TelegramToken)
	assert.Equal(t, "/var/lib/calbot", cfg.TokenStorageDir)
	assert.Equal(t, StoreValkey, cfg.CredentialStore)
	assert.Equal(t, "valkey:6379", cfg.Valkey.URL)
	assert.Equal(t, 3, cfg.Valkey.DB)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.OAuthConfigured())
	require.NoError(t, cfg.Validate())
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=sk-test\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AssistantConfigured())
	require.NoError(t, os.Unsetenv("OPENAI_API_KEY"))
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{TelegramToken: "tg", CredentialStore: StoreFile, HTTPTimeout: time.Second}

	tests := []struct {
		name        string
		mutate      func(*Config)
		wantMissing []string
		wantErr     bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:        "missing telegram token",
			mutate:      func(c *Config) { c.TelegramToken = "" },
			wantMissing: []string{"TELEGRAM_BOT_TOKEN"},
		},
		{
			name:        "valkey without url",
			mutate:      func(c *Config) { c.CredentialStore = StoreValkey },
			wantMissing: []string{"VALKEY_URL"},
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.CredentialStore = "sqlite" },
			wantErr: true,
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.HTTPTimeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()

			switch {
			case tt.wantMissing != nil:
				var cfgErr *ConfigurationError
				require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
				assert.Equal(t, tt.wantMissing, cfgErr.Missing)
			case tt.wantErr:
				require.Error(t, err)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_MissingOAuth(t *testing.T) {
	cfg := Config{GoogleClientID: "id"}
	assert.Equal(t, []string{"GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URI"}, cfg.MissingOAuth())
	assert.False(t, cfg.OAuthConfigured())
}

func TestConfig_CallbackAddr(t *testing.T) {
	tests := []struct {
		redirect string
		want     string
	}{
		{redirect: "http://localhost:8080/callback", want: "0.0.0.0:8080"},
		{redirect: "https://bot.example.com:9443/callback", want: "0.0.0.0:9443"},
		{redirect: "https://bot.example.com/callback", want: "0.0.0.0:8080"},
		{redirect: "", want: "0.0.0.0:8080"},
		{redirect: "://broken", want: "0.0.0.0:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.redirect, func(t *testing.T) {
			cfg := Config{GoogleRedirectURI: tt.redirect}
			assert.Equal(t, tt.want, cfg.CallbackAddr())
		})
	}
}
