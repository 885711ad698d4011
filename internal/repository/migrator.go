package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// GooseMigrator implements Migrator on top of a goose provider
// reading SQL files from an embedded filesystem.
type GooseMigrator struct {
	provider *goose.Provider
	logger   zerolog.Logger
}

// NewGooseMigrator creates a migrator for db. fsys must hold the migration
// files at its root.
func NewGooseMigrator(dialect goose.Dialect, db *sql.DB, fsys fs.FS, logger zerolog.Logger) (*GooseMigrator, error) {
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return &GooseMigrator{
		provider: provider,
		logger:   logger.With().Str("component", "migrator").Logger(),
	}, nil
}

// Up applies all pending migrations.
func (m *GooseMigrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		m.logger.Info().
			Int64("version", r.Source.Version).
			Dur("duration", r.Duration).
			Msg("applied migration")
	}
	if len(results) == 0 {
		m.logger.Debug().Msg("schema is up to date")
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *GooseMigrator) Down(ctx context.Context) error {
	result, err := m.provider.Down(ctx)
	if err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			m.logger.Info().Msg("no migration to roll back")
			return nil
		}
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	m.logger.Info().
		Int64("version", result.Source.Version).
		Dur("duration", result.Duration).
		Msg("rolled back migration")
	return nil
}

// Status reports every known migration and whether it is applied.
func (m *GooseMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}
	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationStatus{
			Version:   s.Source.Version,
			Path:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

// Version returns the current schema version.
func (m *GooseMigrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Ensure GooseMigrator implements Migrator.
var _ Migrator = (*GooseMigrator)(nil)
