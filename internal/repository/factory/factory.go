// Package factory opens the configured database backend and builds its repositories.
package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hoaxify/internal/config"
	"github.com/prn-tf/hoaxify/internal/repository"
	"github.com/prn-tf/hoaxify/internal/repository/postgres"
	"github.com/prn-tf/hoaxify/internal/repository/sqlite"
)

// Repositories holds all repository instances.
type Repositories struct {
	User repository.UserRepository
}

// Store is an opened database with its repositories.
type Store struct {
	Repos    *Repositories
	Tx       repository.TxManager
	Database repository.DatabaseHealth
	Migrator repository.Migrator

	// closers run after Database is closed, in order.
	closers []func() error
}

// Close releases the migrator connection and the database.
func (s *Store) Close() error {
	err := s.Database.Close()
	for _, c := range s.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Factory creates repositories based on configuration.
type Factory struct {
	cfg    config.DatabaseConfig
	logger zerolog.Logger
}

// NewFactory creates a new repository factory.
func NewFactory(cfg config.DatabaseConfig, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// Driver returns the configured database driver.
func (f *Factory) Driver() string {
	return f.cfg.Driver
}

// Open connects to the configured backend.
// Pending migrations are applied when AutoMigrate is set.
func (f *Factory) Open(ctx context.Context) (*Store, error) {
	var (
		store *Store
		err   error
	)

	switch f.cfg.Driver {
	case "sqlite":
		store, err = f.openSQLite(ctx)
	case "postgres":
		store, err = f.openPostgres(ctx)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", f.cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if f.cfg.AutoMigrate {
		if err := store.Migrator.Up(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}

	return store, nil
}

func (f *Factory) openSQLite(ctx context.Context) (*Store, error) {
	sqliteCfg := sqlite.DefaultConfig(f.cfg.Path)
	if f.cfg.JournalMode != "" {
		sqliteCfg.JournalMode = f.cfg.JournalMode
	}
	if f.cfg.BusyTimeout > 0 {
		sqliteCfg.BusyTimeout = f.cfg.BusyTimeout
	}
	if f.cfg.CacheSize != 0 {
		sqliteCfg.CacheSize = f.cfg.CacheSize
	}
	if f.cfg.SynchronousMode != "" {
		sqliteCfg.SynchronousMode = f.cfg.SynchronousMode
	}

	db, err := sqlite.NewDB(ctx, sqliteCfg, f.logger.With().Str("db", "sqlite").Logger())
	if err != nil {
		return nil, err
	}

	migrator, err := db.Migrator()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		Repos:    &Repositories{User: sqlite.NewUserRepository(db)},
		Tx:       db,
		Database: db,
		Migrator: migrator,
	}, nil
}

func (f *Factory) openPostgres(ctx context.Context) (*Store, error) {
	db, err := postgres.NewDB(ctx, f.cfg, f.logger.With().Str("db", "postgres").Logger())
	if err != nil {
		return nil, err
	}

	migrator, sqlDB, err := db.Migrator()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		Repos:    &Repositories{User: postgres.NewUserRepository(db)},
		Tx:       db,
		Database: db,
		Migrator: migrator,
		closers:  []func() error{sqlDB.Close},
	}, nil
}
