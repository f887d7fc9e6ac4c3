package postgres

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationSQL returns the concatenated schema scripts for dry runs.
func MigrationSQL() string {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return ""
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out strings.Builder
	for _, entry := range entries {
		script, err := migrationFS.ReadFile(fmt.Sprintf("migrations/%s", entry.Name()))
		if err != nil {
			continue
		}
		fmt.Fprintf(&out, "-- %s\n%s\n", entry.Name(), script)
	}
	return out.String()
}

// Migrate applies the embedded schema files in lexical order. Applied
// versions are tracked in schema_migrations so reruns are no-ops.
func Migrate(ctx context.Context, db postgres.IClient, logger *logger.Logger) error {
	q := db.GetQuerier(ctx)

	_, err := q.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create schema_migrations table").
			Mark(ierr.ErrDatabase)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read embedded migrations").
			Mark(ierr.ErrSystem)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		version := entry.Name()

		var applied bool
		err := q.GetContext(ctx, &applied,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to check migration status").
				WithReportableDetails(map[string]interface{}{"version": version}).
				Mark(ierr.ErrDatabase)
		}
		if applied {
			continue
		}

		script, err := migrationFS.ReadFile(fmt.Sprintf("migrations/%s", version))
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to read migration file").
				WithReportableDetails(map[string]interface{}{"version": version}).
				Mark(ierr.ErrSystem)
		}

		err = db.WithTx(ctx, func(ctx context.Context) error {
			tx := db.GetQuerier(ctx)
			if _, err := tx.ExecContext(ctx, string(script)); err != nil {
				return ierr.WithError(err).
					WithHint("Migration script failed").
					WithReportableDetails(map[string]interface{}{"version": version}).
					Mark(ierr.ErrDatabase)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
				return ierr.WithError(err).
					WithHint("Failed to record applied migration").
					WithReportableDetails(map[string]interface{}{"version": version}).
					Mark(ierr.ErrDatabase)
			}
			return nil
		})
		if err != nil {
			return err
		}

		logger.Infow("applied migration", "version", version)
	}
	return nil
}
