package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/calbot/internal/assistant"
	"github.com/teemow/calbot/internal/authflow"
	"github.com/teemow/calbot/internal/chat"
	"github.com/teemow/calbot/internal/config"
	"github.com/teemow/calbot/internal/credentials"
	"github.com/teemow/calbot/internal/instrumentation"
	"github.com/teemow/calbot/internal/logging"
	"github.com/teemow/calbot/internal/server"
	"github.com/teemow/calbot/internal/tools"
)

// serveFlags override the environment when set explicitly.
type serveFlags struct {
	credentialStore string
	storageDir      string
	metricsEnabled  bool
	metricsAddr     string
	openAIModel     string
	httpTimeout     time.Duration
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the OAuth callback server",
		Long: `Runs the Telegram bot, the OAuth callback server and, when enabled, the
Prometheus metrics server until interrupted.

Configuration is read from the environment and an optional .env file in the
working directory. Flags take precedence over the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyServeFlags(cmd, &cfg, flags)
			return runServe(cfg, slog.Default())
		},
	}

	cmd.Flags().StringVar(&flags.credentialStore, "credential-store", config.StoreFile, "Credential store backend: file, badger, valkey or memory. Can also use CREDENTIAL_STORE env var.")
	cmd.Flags().StringVar(&flags.storageDir, "token-storage-dir", "", "Directory for the file and badger credential stores. Can also use TOKEN_STORAGE_DIR env var.")
	cmd.Flags().BoolVar(&flags.metricsEnabled, "metrics", true, "Serve Prometheus metrics on a separate address. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
	cmd.Flags().StringVar(&flags.openAIModel, "openai-model", assistant.DefaultModel, "Chat completion model. Can also use OPENAI_MODEL env var.")
	cmd.Flags().DurationVar(&flags.httpTimeout, "http-timeout", 30*time.Second, "Timeout for OAuth and Calendar API requests. Can also use HTTP_TIMEOUT env var.")

	return cmd
}

// applyServeFlags copies explicitly set flags over the loaded config.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, flags serveFlags) {
	changed := cmd.Flags().Changed
	if changed("credential-store") {
		cfg.CredentialStore = flags.credentialStore
	}
	if changed("token-storage-dir") {
		cfg.TokenStorageDir = flags.storageDir
	}
	if changed("metrics") {
		cfg.MetricsEnabled = flags.metricsEnabled
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}
	if changed("openai-model") {
		cfg.OpenAIModel = flags.openAIModel
	}
	if changed("http-timeout") {
		cfg.HTTPTimeout = flags.httpTimeout
	}
}

func runServe(cfg config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig, err := instrumentation.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	if missing := cfg.MissingOAuth(); len(missing) > 0 {
		logger.Warn("OAuth client settings incomplete, /auth will be unavailable", "missing", missing)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	backend, err := newCredentialBackend(cfg, logger)
	if err != nil {
		return err
	}

	encryption, err := newTokenEncryption(cfg.CredentialEncryptionKey)
	if err != nil {
		_ = backend.Close()
		return err
	}
	if !encryption.Enabled() {
		logger.Warn("Credential encryption disabled, tokens are stored in plain text")
	}

	settings := authflow.SettingsFromConfig(cfg)
	store, err := credentials.NewStore(credentials.Options{
		Backend:          backend,
		Refresher:        &credentials.OAuthRefresher{Config: settings.OAuthConfig(), HTTPClient: httpClient},
		Encryption:       encryption,
		RefreshThreshold: cfg.TokenRefreshThreshold,
		Metrics:          metrics,
		Logger:           logger,
	})
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("failed to create credential store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Error closing credential store", logging.Err(err))
		}
	}()

	flow := authflow.NewController(authflow.Options{
		Settings:   settings,
		Store:      store,
		HTTPClient: httpClient,
		Metrics:    metrics,
		Logger:     logger,
	})

	dispatcher := tools.NewDispatcher(tools.Options{
		Credentials: store,
		NewClient:   tools.CalendarClientFactory(httpClient, metrics),
		Metrics:     metrics,
		Audit:       provider.AuditLogger(),
		Logger:      logger,
	})

	// A nil Responder makes the bot answer that the assistant is unavailable.
	var responder chat.Responder
	if cfg.AssistantConfigured() {
		responder = assistant.New(assistant.Options{
			Completions: assistant.NewCompletionService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, nil),
			Dispatcher:  dispatcher,
			Model:       cfg.OpenAIModel,
			Logger:      logger,
		})
	} else {
		logger.Warn("OPENAI_API_KEY not set, free-text messages will not be processed")
	}

	// Long polling holds requests open, so the transport keeps its own client.
	transport, err := chat.NewTelegramTransport(cfg.TelegramToken, nil, logger)
	if err != nil {
		return err
	}

	bot := chat.NewBot(chat.Options{
		Transport:   transport,
		Credentials: store,
		Auth:        flow,
		Assistant:   responder,
		Metrics:     metrics,
		Logger:      logger,
	})

	health := server.NewHealthChecker(version)
	callbackServer, err := server.NewCallbackServer(server.CallbackServerConfig{
		Addr: cfg.CallbackAddr(),
		Callback: server.NewCallbackHandler(server.CallbackOptions{
			Store:    store,
			Flow:     flow,
			Notifier: bot,
			Metrics:  metrics,
			Logger:   logger,
		}),
		Health:  health,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create callback server: %w", err)
	}

	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled && provider.PrometheusEnabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if metricsServer != nil {
		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		g.Go(func() error {
			err := metricsServer.StartWithReadySignal(metricsReady)
			metricsErr <- err
			return err
		})

		select {
		case <-metricsReady:
		case err := <-metricsErr:
			cancel()
			_ = g.Wait()
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			cancel()
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	g.Go(callbackServer.Start)

	g.Go(func() error {
		if err := bot.Run(gctx); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errors.New("chat loop stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		health.SetShuttingDown()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()

		var errs []error
		if err := callbackServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("callback server shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	health.SetReady(true)
	logger.Info("calbot started",
		"version", version,
		"callback_addr", cfg.CallbackAddr(),
		"credential_store", cfg.CredentialStore,
		"assistant", responder != nil,
	)

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// newCredentialBackend opens the backend selected by CREDENTIAL_STORE.
func newCredentialBackend(cfg config.Config, logger *slog.Logger) (credentials.Backend, error) {
	switch cfg.CredentialStore {
	case config.StoreFile, "":
		backend, err := credentials.NewFileBackend(cfg.TokenStorageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open file credential store: %w", err)
		}
		logger.Info("Using file credential store", "dir", cfg.TokenStorageDir)
		return backend, nil

	case config.StoreBadger:
		dir := filepath.Join(cfg.TokenStorageDir, "badger")
		backend, err := credentials.NewBadgerBackend(credentials.BadgerOptions{Dir: dir, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger credential store: %w", err)
		}
		logger.Info("Using badger credential store", "dir", dir)
		return backend, nil

	case config.StoreValkey:
		backend, err := credentials.NewValkeyBackend(credentials.ValkeyOptions{
			Addr:       cfg.Valkey.URL,
			Password:   cfg.Valkey.Password,
			DB:         cfg.Valkey.DB,
			TLSEnabled: cfg.Valkey.TLSEnabled,
			KeyPrefix:  cfg.Valkey.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open valkey credential store: %w", err)
		}
		logger.Info("Using valkey credential store", "addr", cfg.Valkey.URL, "tls", cfg.Valkey.TLSEnabled)
		return backend, nil

	case config.StoreMemory:
		logger.Warn("Using in-memory credential store, credentials are lost on restart")
		return credentials.NewMemoryBackend(), nil

	default:
		return nil, fmt.Errorf("unsupported credential store %q", cfg.CredentialStore)
	}
}

// newTokenEncryption returns nil when no key is configured.
func newTokenEncryption(encodedKey string) (*credentials.TokenEncryption, error) {
	if encodedKey == "" {
		return nil, nil
	}
	key, err := credentials.EncryptionKeyFromBase64(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid CREDENTIAL_ENCRYPTION_KEY: %w", err)
	}
	enc, err := credentials.NewTokenEncryption(key)
	if err != nil {
		return nil, fmt.Errorf("invalid CREDENTIAL_ENCRYPTION_KEY: %w", err)
	}
	return enc, nil
}
