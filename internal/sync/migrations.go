package sync

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// newMigrator builds a goose provider over the embedded schema files.
func newMigrator(db *sql.DB) (*goose.Provider, error) {
	sub, err := fs.Sub(schemaFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sync: opening embedded schema: %w", err)
	}

	p, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return nil, fmt.Errorf("sync: creating schema migrator: %w", err)
	}

	return p, nil
}

// runMigrations brings the record store schema up to date and logs the
// resulting version.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	p, err := newMigrator(db)
	if err != nil {
		return err
	}

	applied, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("sync: migrating record store: %w", err)
	}

	for _, r := range applied {
		logger.Debug("schema migration applied",
			slog.Int64("version", r.Source.Version),
			slog.Duration("took", r.Duration),
		)
	}

	version, err := p.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("sync: reading schema version: %w", err)
	}

	logger.Info("record store schema ready",
		slog.Int64("version", version),
		slog.Int("applied", len(applied)),
	)

	return nil
}

// SchemaVersion reports the schema version of an open store.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	p, err := newMigrator(s.db)
	if err != nil {
		return 0, err
	}

	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync: reading schema version: %w", err)
	}

	return v, nil
}
