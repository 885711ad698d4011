// Package app assembles the Hoaxify components from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hoaxify/internal/config"
	"github.com/prn-tf/hoaxify/internal/i18n"
	"github.com/prn-tf/hoaxify/internal/lock"
	"github.com/prn-tf/hoaxify/internal/mail"
	"github.com/prn-tf/hoaxify/internal/metrics"
	"github.com/prn-tf/hoaxify/internal/pkg/crypto"
	"github.com/prn-tf/hoaxify/internal/repository/factory"
	"github.com/prn-tf/hoaxify/internal/service"
)

// App holds the wired components shared by the binaries.
type App struct {
	Config     *config.Config
	Store      *factory.Store
	Translator *i18n.Translator
	Metrics    *metrics.Metrics
	Users      *service.UserService

	closers []func() error
}

// New opens the store and lock backend and builds the user service.
// Metrics are collected only when enabled in the configuration.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}

	translator, err := i18n.New(cfg.I18n.DefaultLanguage)
	if err != nil {
		return nil, err
	}
	a.Translator = translator

	store, err := factory.NewFactory(cfg.Database, logger).Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	locker, err := a.newLocker(ctx, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	sender := mail.NewSMTPSender(cfg.Mail, logger)
	notifier := mail.NewActivationMailer(sender, translator, cfg.Mail.ActivationURL, cfg.Mail.SendTimeout)

	a.Users = service.NewUserService(service.UserServiceConfig{
		Users:           store.Repos.User,
		Tx:              store.Tx,
		Locker:          locker,
		Notifier:        notifier,
		Hasher:          crypto.NewPasswordHasher(cfg.Auth.BcryptCost),
		Metrics:         a.Metrics,
		LockTTL:         cfg.Auth.RegistrationLockTTL,
		DefaultPageSize: cfg.Pagination.DefaultSize,
		MaxPageSize:     cfg.Pagination.MaxSize,
		Logger:          logger,
	})

	return a, nil
}

// newLocker returns the Redis locker when Redis is enabled and an in-process one otherwise.
func (a *App) newLocker(ctx context.Context, logger zerolog.Logger) (lock.Locker, error) {
	if !a.Config.Redis.Enabled {
		locker := lock.NewMemoryLocker()
		a.closers = append(a.closers, locker.Close)
		return locker, nil
	}

	client, err := lock.NewRedisClient(ctx, a.Config.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	logger.Info().Str("addr", a.Config.Redis.Addr()).Msg("using redis registration locks")
	return lock.NewRedisLocker(client, logger), nil
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if cerr := a.closers[i](); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.closers = nil
	return err
}
