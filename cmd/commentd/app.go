package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-comment-moderation/internal/config"
	httpapi "github.com/tbourn/go-comment-moderation/internal/http"
	"github.com/tbourn/go-comment-moderation/internal/identity"
	"github.com/tbourn/go-comment-moderation/internal/notify"
	"github.com/tbourn/go-comment-moderation/internal/observability"
	"github.com/tbourn/go-comment-moderation/internal/repo"
	"github.com/tbourn/go-comment-moderation/internal/services"
)

// app is the fully wired process: store, gateway, services and router.
type app struct {
	cfg        config.Config
	log        zerolog.Logger
	db         *gorm.DB
	store      services.CommentStore
	gateway    notify.Gateway
	engine     *gin.Engine
	reconciler *services.Reconciler
}

func newApp(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	store, db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store, a.db = store, db

	n, err := store.RebuildIdentities(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("rebuild identities: %w", err)
	}
	log.Info().Int("identities", n).Str("driver", cfg.StoreDriver).Msg("store ready")

	a.gateway, err = newGateway(cfg.Telegram)
	if err != nil {
		a.close()
		return nil, err
	}
	if _, off := a.gateway.(notify.Noop); off {
		log.Warn().Msg("telegram not configured; moderation requests will not be delivered")
	}

	fpr := identity.NewFingerprinter(cfg.Identity)
	if !fpr.Keyed() {
		log.Warn().Msg("FINGERPRINT_SECRET not set; fingerprints are unkeyed hashes")
	}

	texts := notify.Catalog(cfg.Moderation.Locale)
	sub := &services.SubmissionService{
		Store:          store,
		Gate:           identity.NewGate(store),
		Gateway:        a.gateway,
		Texts:          texts,
		Log:            log.With().Str("component", "submission").Logger(),
		MaxTextRunes:   cfg.Moderation.MaxTextRunes,
		MaxNameRunes:   cfg.Moderation.MaxNameRunes,
		IdempotencyTTL: cfg.IdempotencyTTL,
		GatewayTimeout: cfg.Telegram.Timeout,
	}
	mod := services.NewModerationService(store, a.gateway, texts,
		log.With().Str("component", "moderation").Logger(), cfg.Moderation.DecisionCacheSize)
	mod.GatewayTimeout = cfg.Telegram.Timeout
	pub := &services.PublicationService{Store: store}

	a.reconciler = &services.Reconciler{
		Store:             store,
		Gateway:           a.gateway,
		Texts:             texts,
		Log:               log.With().Str("component", "reconciler").Logger(),
		GatewayTimeout:    cfg.Telegram.Timeout,
		Interval:          cfg.Moderation.ReconcileInterval,
		OrphanAfter:       cfg.Moderation.OrphanAfter,
		RejectedRetention: cfg.Moderation.RejectedRetention,
	}

	gin.SetMode(cfg.GinMode)
	a.engine = gin.New()
	err = httpapi.RegisterRoutes(a.engine, httpapi.Deps{
		Submission:    sub,
		Publication:   pub,
		Moderation:    mod,
		Idempotency:   httpapi.StoreIdempotency(store),
		Fingerprinter: fpr,
	}, cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("routes: %w", err)
	}
	return a, nil
}

// startReconciler runs the reconciler until ctx is done or stop is called.
// stop blocks until the loop, including any pass in flight, has returned.
func (a *app) startReconciler(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.reconciler.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// openStore returns the configured engine. db is nil for the memory store.
func openStore(cfg config.Config) (services.CommentStore, *gorm.DB, error) {
	if cfg.StoreDriver == config.DriverMemory {
		return repo.NewMemoryStore(), nil, nil
	}
	db, err := repo.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	if err := observability.InstrumentDB(db, nil); err != nil {
		closeDB(db)
		return nil, nil, err
	}
	return repo.NewGormStore(db), db, nil
}

// newGateway returns the Telegram adapter, or a no-op when unconfigured.
func newGateway(cfg config.TelegramConfig) (notify.Gateway, error) {
	tg, err := notify.NewTelegram(cfg)
	if errors.Is(err, notify.ErrDisabled) {
		return notify.Noop{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return tg, nil
}

func (a *app) close() {
	if a.db != nil {
		closeDB(a.db)
	}
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
