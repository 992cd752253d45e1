package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema files in name order inside one
// transaction. Every statement is idempotent, so running it against an
// up-to-date database is a no-op.
func Migrate(ctx context.Context, client *postgres.Client) error {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	sort.Strings(names)

	logger := observability.ComponentLogger(ctx, "migrate")
	return client.WithTx(ctx, sql.LevelDefault, func(tx *sqlx.Tx) error {
		for _, name := range names {
			body, err := migrationsFS.ReadFile(name)
			if err != nil {
				return fmt.Errorf("reading %s: %w", name, err)
			}
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("applying %s: %w", name, err)
			}
			logger.Info().Str("migration", name).Msg("migration applied")
		}
		return nil
	})
}
