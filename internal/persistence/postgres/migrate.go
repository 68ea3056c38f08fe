package postgres

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every embedded *.sql migration in filename order,
// tracking what has already run in a schema_migrations table and skipping
// it, grounded on migrator.py's apply_migrations/_split_sql.
func Migrate(ctx context.Context, db *sqlx.DB) ([]string, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return nil, fmt.Errorf("failed to init schema_migrations: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var applied []string
	for _, name := range names {
		var exists int
		err := db.QueryRowxContext(ctx, `SELECT 1 FROM schema_migrations WHERE filename = $1`, name).Scan(&exists)
		if err == nil {
			log.Info().Str("migration", name).Msg("migrate: already applied, skipping")
			continue
		}

		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		for idx, stmt := range splitSQL(string(raw)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return applied, fmt.Errorf("migration %s failed at statement #%d: %w", name, idx+1, err)
			}
		}

		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
			return applied, fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		applied = append(applied, name)
		log.Info().Str("migration", name).Msg("migrate: applied")
	}

	return applied, nil
}

// splitSQL is a line-ending statement splitter: a line that (after
// trimming) ends in ';' closes the current statement. Sufficient for our
// migration files, which never embed a ';' inside a string literal at
// line-end.
func splitSQL(sql string) []string {
	var stmts []string
	var buf []string

	for _, line := range strings.Split(sql, "\n") {
		buf = append(buf, line)
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			stmt := strings.TrimSpace(strings.Join(buf, "\n"))
			if stmt != "" {
				stmts = append(stmts, stmt)
			}
			buf = nil
		}
	}
	if tail := strings.TrimSpace(strings.Join(buf, "\n")); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}
