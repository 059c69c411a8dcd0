// Package app builds and holds the long-lived services of the bot process.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/admin"
	"github.com/JakeFAU/wii-build-monitor/internal/bot"
	"github.com/JakeFAU/wii-build-monitor/internal/config"
	"github.com/JakeFAU/wii-build-monitor/internal/diagnostic"
	"github.com/JakeFAU/wii-build-monitor/internal/monitor"
	"github.com/JakeFAU/wii-build-monitor/internal/render"
	"github.com/JakeFAU/wii-build-monitor/internal/settings"
	"github.com/JakeFAU/wii-build-monitor/internal/storage"
	"github.com/JakeFAU/wii-build-monitor/internal/storage/local"
	"github.com/JakeFAU/wii-build-monitor/internal/telegram"
)

// App is the dependency container for the bot and check commands.
type App struct {
	Logger     *zap.Logger
	Settings   settings.Store
	Telegram   *telegram.Client
	Render     *render.Client
	Archive    storage.BlobStore
	Monitor    *monitor.Monitor
	Diagnostic *diagnostic.Runner
	Dispatcher *admin.Dispatcher
	Bot        *bot.Bot
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	store settings.Store
}

// WithSettingsStore uses store instead of opening one from cfg.Store.
func WithSettingsStore(store settings.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// NewApp validates cfg and wires every service the bot needs. It fails fast
// on configuration errors.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.ValidateBot(); err != nil {
		return nil, err
	}
	admins, err := cfg.AdminIDSet()
	if err != nil {
		return nil, err
	}

	store := o.store
	if store == nil {
		logger.Info("opening settings store", zap.String("driver", cfg.Store.Driver))
		store, err = settings.Open(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open settings store: %w", err)
		}
	}

	archive, err := newArchive(cfg.Archive, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	pollTimeout := cfg.Telegram.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = telegram.DefaultPollTimeout
	}
	tg := telegram.NewClient(cfg.Telegram.Token, logger.Named("telegram"),
		telegram.WithBaseURL(cfg.Telegram.APIURL),
		telegram.WithHTTPClient(&http.Client{Timeout: pollTimeout + 5*time.Second}),
	)
	rc := render.NewClient(logger.Named("render"))

	mon := monitor.New(store, rc, tg, logger.Named("monitor"), monitor.WithArchive(archive))
	diag := diagnostic.New(store, rc, tg, logger.Named("diagnostic"))
	dispatch := admin.New(admins, store, tg, mon, diag, logger.Named("admin"))
	loop := bot.New(tg, dispatch, mon, store, logger.Named("bot"), bot.WithPollTimeout(pollTimeout))

	logger.Info("application services initialized",
		zap.Int("admins", len(admins)),
		zap.Duration("poll_timeout", pollTimeout),
	)
	return &App{
		Logger:     logger,
		Settings:   store,
		Telegram:   tg,
		Render:     rc,
		Archive:    archive,
		Monitor:    mon,
		Diagnostic: diag,
		Dispatcher: dispatch,
		Bot:        loop,
	}, nil
}

func newArchive(cfg config.ArchiveConfig, logger *zap.Logger) (storage.BlobStore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		logger.Info("screenshot archive disabled")
		return storage.NoOpStore{}, nil
	}
	store, err := local.New(local.Config{BaseDir: cfg.Dir})
	if err != nil {
		return nil, fmt.Errorf("init screenshot archive: %w", err)
	}
	logger.Info("archiving screenshots", zap.String("dir", cfg.Dir))
	return store, nil
}

// Close shuts down the services and flushes the logger.
func (a *App) Close() error {
	a.Logger.Info("shutting down application services")
	err := a.Settings.Close()
	if syncErr := a.Logger.Sync(); syncErr != nil && !isSyncNoise(syncErr) {
		err = multierr.Append(err, fmt.Errorf("sync logger: %w", syncErr))
	}
	return err
}

// isSyncNoise filters the error zap reports when stderr is a terminal.
func isSyncNoise(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}
