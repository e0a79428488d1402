package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/e2ee-core/relay/config"
	"github.com/e2ee-core/relay/internal/logger"
	"github.com/e2ee-core/relay/internal/metrics"
	"github.com/e2ee-core/relay/internal/storage"
	"github.com/e2ee-core/relay/internal/storage/postgres"
	"github.com/e2ee-core/relay/relay"
	"github.com/e2ee-core/relay/transport"
	"github.com/e2ee-core/relay/transport/websocket"
)

var (
	configDir string
	configEnv string
)

func runServe(cmd *cobra.Command, args []string) error {
	// .env is optional; a missing file is not an error. Lets local
	// development secrets (JWKS URLs, DSNs) live outside config/.
	_ = godotenv.Load()

	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir, Environment: configEnv})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.Logging)
	log.Info("starting relay server",
		logger.String("environment", cfg.Environment),
		logger.String("listen_addr", cfg.Relay.ListenAddr),
		logger.String("storage_driver", cfg.Storage.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messages, sessions, keys, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStore()

	auth := relay.NewJWTAuthenticator(relay.JWTAuthenticatorConfig{
		Issuer:   cfg.Relay.JWTIssuer,
		Audience: cfg.Relay.JWTAudience,
		JWKSURL:  cfg.Relay.JWKSURL,
		CacheTTL: cfg.Relay.JWKSCacheTTL,
	})
	limiter := relay.NewLimiter(cfg.Relay.KEPRateLimit, cfg.Relay.DataRateLimit)
	hub := transport.NewHub()
	svc := relay.NewService(messages, sessions, keys, auth, limiter, hub)
	metrics.SetReady(true)

	mux := http.NewServeMux()
	relay.NewHTTPHandler(svc).Routes(mux)

	wsServer := websocket.NewServer(hub, auth.Authenticate, svc.Dispatch)
	mux.Handle("/ws", wsServer.Handler())

	httpSrv := &http.Server{
		Addr:    cfg.Relay.ListenAddr,
		Handler: mux,
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		go func() {
			log.Info("starting metrics server", logger.String("addr", cfg.Metrics.Addr))
			if err := metrics.StartServer(cfg.Metrics.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", logger.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("relay listening", logger.String("addr", cfg.Relay.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("relay server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("relay server stopped")
	return nil
}

// openStore selects the memory or postgres driver per cfg.Driver and
// returns its three sub-stores plus a close func, so callers defer
// exactly one cleanup regardless of which driver was chosen.
func openStore(ctx context.Context, cfg *config.StorageConfig) (storage.MessageStore, storage.SessionStore, storage.KeyStore, func(), error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		store, err := postgres.NewStoreFromDSN(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return store.MessageStore(), store.SessionStore(), store.KeyStore(), func() { store.Close() }, nil
	default:
		mem := storage.NewInMemory()
		return mem, mem, mem, func() {}, nil
	}
}

// newLogger builds the structured logger at the level and format cfg
// requests, falling back to the package default on an unrecognized level
// name.
func newLogger(cfg *config.LoggingConfig) *logger.StructuredLogger {
	l := logger.NewDefaultLogger()
	if cfg == nil {
		return l
	}
	l.SetLevel(parseLevel(cfg.Level))
	l.SetPrettyPrint(cfg.Format != "json")
	return l
}

func parseLevel(level string) logger.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DebugLevel
	case "warn", "warning":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	case "fatal":
		return logger.FatalLevel
	default:
		return logger.InfoLevel
	}
}
