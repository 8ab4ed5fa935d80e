// Package config builds the single Config value calbot runs with.
//
// Values come from the process environment, optionally seeded from a .env
// file in the working directory. Command-line flags on the serve command are
// applied on top by the caller.
package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Credential store backends.
const (
	StoreFile   = "file"
	StoreBadger = "badger"
	StoreValkey = "valkey"
	StoreMemory = "memory"
)

const (
	// DefaultCallbackPort is used when the redirect URI carries no port.
	DefaultCallbackPort = "8080"

	appName = "calbot"
)

// Config is the complete runtime configuration.
type Config struct {
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleProjectID    string `env:"GOOGLE_PROJECT_ID"`
	GoogleAuthURI      string `env:"GOOGLE_AUTH_URI" envDefault:"https://accounts.google.com/o/oauth2/auth"`
	GoogleTokenURI     string `env:"GOOGLE_TOKEN_URI" envDefault:"https://oauth2.googleapis.com/token"`
	GoogleCertURL      string `env:"GOOGLE_AUTH_PROVIDER_X509_CERT_URL" envDefault:"https://www.googleapis.com/oauth2/v1/certs"`
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI" envDefault:"http://localhost:8080/callback"`

	TokenStorageDir         string `env:"TOKEN_STORAGE_DIR"`
	CredentialStore         string `env:"CREDENTIAL_STORE" envDefault:"file"`
	CredentialEncryptionKey string `env:"CREDENTIAL_ENCRYPTION_KEY"`

	Valkey ValkeyConfig

	HTTPTimeout           time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	TokenRefreshThreshold time.Duration `env:"TOKEN_REFRESH_THRESHOLD" envDefault:"1m"`

	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsAddr    string `env:"METRICS_ADDR" envDefault:":9090"`
}

// ValkeyConfig holds the valkey credential backend settings.
type ValkeyConfig struct {
	URL        string `env:"VALKEY_URL"`
	Password   string `env:"VALKEY_PASSWORD"`
	DB         int    `env:"VALKEY_DB" envDefault:"0"`
	TLSEnabled bool   `env:"VALKEY_TLS_ENABLED" envDefault:"false"`
	KeyPrefix  string `env:"VALKEY_KEY_PREFIX" envDefault:"calbot:"`
}

// ConfigurationError reports required settings that are not set.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
}

// Load reads .env (if present) and the environment into a Config.
// It does not validate; call Validate once flags have been applied.
func Load() (Config, error) {
	// A missing .env file is the normal case in containers.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.TokenStorageDir == "" {
		cfg.TokenStorageDir = DefaultStorageDir()
	}
	return cfg, nil
}

// DefaultStorageDir returns the XDG data location for stored credentials.
func DefaultStorageDir() string {
	return filepath.Join(xdg.DataHome, appName, "credentials")
}

// Validate checks the settings without which calbot cannot start.
func (c Config) Validate() error {
	var missing []string
	if c.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	switch c.CredentialStore {
	case StoreFile, StoreBadger, StoreMemory:
	case StoreValkey:
		if c.Valkey.URL == "" {
			missing = append(missing, "VALKEY_URL")
		}
	default:
		return fmt.Errorf("unsupported credential store %q, must be one of: file, badger, valkey, memory", c.CredentialStore)
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}

// MissingOAuth lists the OAuth client settings that are not set.
func (c Config) MissingOAuth() []string {
	var missing []string
	if c.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if c.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if c.GoogleRedirectURI == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URI")
	}
	return missing
}

// OAuthConfigured reports whether the authorization flow can be started.
func (c Config) OAuthConfigured() bool {
	return len(c.MissingOAuth()) == 0
}

// AssistantConfigured reports whether a model API key is available.
func (c Config) AssistantConfigured() bool {
	return c.OpenAIAPIKey != ""
}

// CallbackAddr derives the callback listener address from the redirect URI.
// The server binds all interfaces on the URI's port, or DefaultCallbackPort
// if the URI has none or cannot be parsed.
func (c Config) CallbackAddr() string {
	port := DefaultCallbackPort
	if u, err := url.Parse(c.GoogleRedirectURI); err == nil && u.Port() != "" {
		port = u.Port()
	}
	return net.JoinHostPort("0.0.0.0", port)
}
