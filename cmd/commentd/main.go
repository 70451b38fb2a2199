// Command commentd serves the anonymous comment moderation API.
//
// Usage:
//
//	commentd [serve] [-env-file .env]
//	commentd set-webhook -url https://host/webhook
//
// Settings come from the environment (optionally seeded from a .env file);
// flags may also be given as COMMENTD_* variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-comment-moderation/internal/config"
	"github.com/tbourn/go-comment-moderation/internal/notify"
	"github.com/tbourn/go-comment-moderation/internal/observability"
	"github.com/tbourn/go-comment-moderation/internal/sysutil"
)

const serviceName = "commentd"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "set-webhook":
		err = runSetWebhook(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q. Available commands: serve, set-webhook\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// loadConfig seeds the environment from envFile (missing file is fine) and
// loads the configuration.
func loadConfig(envFile string) (config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, fmt.Errorf("env file: %w", err)
		}
	}
	return config.Load()
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("commentd serve", flag.ExitOnError)
	envFile := fs.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("COMMENTD")); err != nil {
		return err
	}

	cfg, err := loadConfig(*envFile)
	if err != nil {
		return err
	}
	log := sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, sysutil.FirstNonEmpty(os.Getenv("SERVICE_VERSION"), version))
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer flush(log, shutdownOTel, cfg)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	// Deferred after close, so it runs first: the store stays open until the
	// reconciler has exited.
	defer a.startReconciler(ctx)()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("base_path", cfg.APIBasePath).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server exited gracefully")
	return nil
}

func flush(log zerolog.Logger, shutdown func(context.Context) error, cfg config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
}

func runSetWebhook(args []string) error {
	fs := flag.NewFlagSet("commentd set-webhook", flag.ExitOnError)
	envFile := fs.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	url := fs.String("url", "", "Public HTTPS URL of the webhook route, e.g. https://host/webhook")
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("COMMENTD")); err != nil {
		return err
	}
	if !strings.HasPrefix(*url, "https://") {
		return errors.New("-url must be an https URL")
	}

	cfg, err := loadConfig(*envFile)
	if err != nil {
		return err
	}
	log := sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, serviceName)

	tg, err := notify.NewTelegram(cfg.Telegram)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if err := tg.SetWebhook(*url, cfg.Telegram.WebhookSecret); err != nil {
		return err
	}
	log.Info().Bool("secret", cfg.Telegram.WebhookSecret != "").Msg("webhook registered")
	return nil
}
