// Package registry is Arachne's durable store: Entities, per-server
// permission rows, templates, join requests, and OAuth artifacts. It is the
// sole owner of all durable records (spec.md §3 "Ownership model") and is
// backed solely by SQLite, per spec.md's single-writer-SQLite Non-goal.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	_ "modernc.org/sqlite"

	"github.com/rakunlabs/arachne/internal/config"
)

// DefaultTablePrefix matches the teacher's table-prefix convention.
var DefaultTablePrefix = "arachne_"

// Registry is the durable store. All methods are safe for concurrent use;
// SQLite itself serializes writers (single connection, per spec.md §5).
type Registry struct {
	db   *sql.DB
	goqu *goqu.Database

	tableEntities       exp.IdentifierExpression
	tableEntityServers  exp.IdentifierExpression
	tableServerSettings exp.IdentifierExpression
	tableServerTemplate exp.IdentifierExpression
	tableServerRequests exp.IdentifierExpression
	tableOAuthClients   exp.IdentifierExpression
	tableOAuthAuthCodes exp.IdentifierExpression
	tableOAuthAccess    exp.IdentifierExpression
	tableOAuthRefresh   exp.IdentifierExpression

	// mu serializes the handful of multi-statement transactions that
	// aren't already wrapped in sql.Tx (defensive; SQLite's single
	// connection already prevents interleaved writers).
	mu sync.Mutex
}

// New opens (creating if necessary) the SQLite-backed registry and brings
// its schema up to date.
func New(ctx context.Context, cfg *config.StoreSQLite) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("sqlite configuration is nil")
	}
	if cfg.Datasource == "" {
		return nil, errors.New("sqlite datasource is required")
	}

	tablePrefix := DefaultTablePrefix
	if cfg.TablePrefix != nil {
		tablePrefix = *cfg.TablePrefix
	}

	migrate := cfg.Migrate
	if migrate.Table == "" {
		migrate.Table = "migrations"
	}
	if migrate.Datasource == "" {
		migrate.Datasource = cfg.Datasource
	}
	migrate.Table = tablePrefix + migrate.Table
	if migrate.Values == nil {
		migrate.Values = make(map[string]string)
	}
	migrate.Values["TABLE_PREFIX"] = tablePrefix

	if err := migrateDB(ctx, &migrate); err != nil {
		return nil, fmt.Errorf("migrate registry: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite is single-writer; limit connections accordingly.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := ensureColumns(ctx, db, tablePrefix); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure additive columns: %w", err)
	}

	slog.Info("connected to registry sqlite")

	dbGoqu := goqu.New("sqlite3", db)

	return &Registry{
		db:                  db,
		goqu:                dbGoqu,
		tableEntities:       goqu.T(tablePrefix + "entities"),
		tableEntityServers:  goqu.T(tablePrefix + "entity_servers"),
		tableServerSettings: goqu.T(tablePrefix + "server_settings"),
		tableServerTemplate: goqu.T(tablePrefix + "server_templates"),
		tableServerRequests: goqu.T(tablePrefix + "server_requests"),
		tableOAuthClients:   goqu.T(tablePrefix + "oauth_clients"),
		tableOAuthAuthCodes: goqu.T(tablePrefix + "oauth_auth_codes"),
		tableOAuthAccess:    goqu.T(tablePrefix + "oauth_access_tokens"),
		tableOAuthRefresh:   goqu.T(tablePrefix + "oauth_refresh_tokens"),
	}, nil
}

func (r *Registry) Close() {
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			slog.Error("close registry sqlite connection", "error", err)
		}
	}
}
