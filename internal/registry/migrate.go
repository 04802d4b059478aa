package registry

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/rakunlabs/arachne/internal/config"
	"github.com/rakunlabs/muz"
)

//go:embed migrations/*
var migrationFS embed.FS

// migrateDB runs the versioned-file schema migrations (fresh-database
// creation) via muz, exactly as the teacher's sqlite3.MigrateDB does.
func migrateDB(ctx context.Context, cfg *config.Migrate) error {
	if cfg.Datasource == "" {
		return fmt.Errorf("migrate datasource is required")
	}

	db, err := sql.Open("sqlite", cfg.Datasource)
	if err != nil {
		return fmt.Errorf("open sqlite connection for migration: %w", err)
	}
	defer db.Close()

	m := muz.Migrate{
		Path:      "migrations",
		FS:        migrationFS,
		Extension: ".sql",
		Values:    cfg.Values,
	}

	driver := muz.NewSQLiteDriver(db, cfg.Table, slog.Default())

	if err := m.Migrate(ctx, driver); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// columnSpec names a column that must exist on a table, with the SQL
// fragment used to add it if missing.
type columnSpec struct {
	table  string
	column string
	ddl    string
}

// ensureColumns implements spec.md §4.1's migration contract: "inspect the
// schema catalog and apply missing-column additions idempotently; all
// migrations are additive... so older databases upgrade in place." It runs
// after the muz version-file pass, which only covers fresh-schema creation;
// this pass is what lets a column added to a later Arachne release show up
// on a database created by an earlier one, without a destructive rebuild.
func ensureColumns(ctx context.Context, db *sql.DB, tablePrefix string) error {
	specs := []columnSpec{
		{tablePrefix + "entities", "accent_color", "ALTER TABLE %s ADD COLUMN accent_color TEXT NOT NULL DEFAULT ''"},
		{tablePrefix + "entities", "description", "ALTER TABLE %s ADD COLUMN description TEXT NOT NULL DEFAULT ''"},
		{tablePrefix + "entities", "owner_notify_opt_in", "ALTER TABLE %s ADD COLUMN owner_notify_opt_in INTEGER NOT NULL DEFAULT 0"},
		{tablePrefix + "entity_servers", "template_id", "ALTER TABLE %s ADD COLUMN template_id TEXT NOT NULL DEFAULT ''"},
		{tablePrefix + "entity_servers", "announce_channel_id", "ALTER TABLE %s ADD COLUMN announce_channel_id TEXT NOT NULL DEFAULT ''"},
		{tablePrefix + "entity_servers", "triggers", "ALTER TABLE %s ADD COLUMN triggers TEXT NOT NULL DEFAULT '[]'"},
	}

	for _, spec := range specs {
		exists, err := columnExists(ctx, db, spec.table, spec.column)
		if err != nil {
			// Table may not exist yet on a database older than this
			// column's introducing table; skip silently, the muz
			// fresh-schema pass already covers that case.
			continue
		}
		if exists {
			continue
		}

		ddl := fmt.Sprintf(spec.ddl, spec.table)
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", spec.table, spec.column, err)
		}

		slog.Info("registry: additive migration applied", "table", spec.table, "column", spec.column)
	}

	return nil
}

// columnExists inspects PRAGMA table_info(<table>) for the named column.
func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}

	return false, rows.Err()
}
