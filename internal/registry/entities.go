package registry

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

// NewAPIKey generates a fresh raw API key and its accompanying 128-bit salt.
// The raw key is returned exactly once by the caller (spec.md §3 Entity
// invariant) and never persisted; only its bcrypt hash and the salt are.
func NewAPIKey() (rawKey string, salt []byte, err error) {
	keyBytes := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
		return "", nil, fmt.Errorf("generate api key: %w", err)
	}

	salt = make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", nil, fmt.Errorf("generate salt: %w", err)
	}

	return "ent_" + ulid.Make().String() + "_" + encodeHex(keyBytes), salt, nil
}

func encodeHex(b []byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hex[c>>4]
		out[i*2+1] = hex[c&0x0f]
	}
	return string(out)
}

// HashAPIKey bcrypt-hashes a raw API key for storage.
func HashAPIKey(rawKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(hash), nil
}

type entityRow struct {
	ID               string
	Name             string
	AvatarURL        string
	Description      string
	AccentColor      string
	Platform         string
	OwnerID          string
	OwnerDisplayName string
	OwnerNotifyOptIn int
	APIKeyHash       string
	KeySalt          string
	Active           int
	CreatedAt        string
}

func (row entityRow) toModel() (*Entity, error) {
	salt, err := decodeHex(row.KeySalt)
	if err != nil {
		return nil, fmt.Errorf("decode key salt: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &Entity{
		ID:               row.ID,
		Name:             row.Name,
		AvatarURL:        row.AvatarURL,
		Description:      row.Description,
		AccentColor:      row.AccentColor,
		Platform:         row.Platform,
		OwnerID:          row.OwnerID,
		OwnerDisplayName: row.OwnerDisplayName,
		OwnerNotifyOptIn: row.OwnerNotifyOptIn != 0,
		APIKeyHash:       row.APIKeyHash,
		KeySalt:          salt,
		Active:           row.Active != 0,
		CreatedAt:        createdAt,
	}, nil
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errors.New("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := hexNibble(s[i*2])
		if err != nil {
			return nil, err
		}
		lo, err := hexNibble(s[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex char %q", c)
	}
}

// CreateEntity inserts a new Entity. Callers are expected to have already
// generated the raw API key (NewAPIKey) and hashed it (HashAPIKey); the raw
// key itself never reaches this package.
func (r *Registry) CreateEntity(ctx context.Context, e Entity) (*Entity, error) {
	e.ID = ulid.Make().String()
	e.CreatedAt = time.Now().UTC()
	e.Active = true

	query, _, err := r.goqu.Insert(r.tableEntities).Rows(goqu.Record{
		"id":                  e.ID,
		"name":                e.Name,
		"avatar_url":          e.AvatarURL,
		"description":         e.Description,
		"accent_color":        e.AccentColor,
		"platform":            e.Platform,
		"owner_id":            e.OwnerID,
		"owner_display_name":  e.OwnerDisplayName,
		"owner_notify_opt_in": boolToInt(e.OwnerNotifyOptIn),
		"api_key_hash":        e.APIKeyHash,
		"key_salt":            hexEncode(e.KeySalt),
		"active":              1,
		"created_at":          e.CreatedAt.Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build insert entity query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}

	return &e, nil
}

func hexEncode(b []byte) string { return encodeHex(b) }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetEntity fetches an Entity by id regardless of active flag.
func (r *Registry) GetEntity(ctx context.Context, id string) (*Entity, error) {
	query, _, err := r.goqu.From(r.tableEntities).
		Select("id", "name", "avatar_url", "description", "accent_color", "platform",
			"owner_id", "owner_display_name", "owner_notify_opt_in", "api_key_hash", "key_salt", "active", "created_at").
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get entity query: %w", err)
	}

	var row entityRow
	err = r.db.QueryRowContext(ctx, query).Scan(&row.ID, &row.Name, &row.AvatarURL, &row.Description,
		&row.AccentColor, &row.Platform, &row.OwnerID, &row.OwnerDisplayName, &row.OwnerNotifyOptIn,
		&row.APIKeyHash, &row.KeySalt, &row.Active, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %q: %w", id, err)
	}

	return row.toModel()
}

// EntitiesByOwner returns every active Entity owned by the given platform
// user id, used to populate the OAuth consent page.
func (r *Registry) EntitiesByOwner(ctx context.Context, ownerID string) ([]Entity, error) {
	query, _, err := r.goqu.From(r.tableEntities).
		Select("id", "name", "avatar_url", "description", "accent_color", "platform",
			"owner_id", "owner_display_name", "owner_notify_opt_in", "api_key_hash", "key_salt", "active", "created_at").
		Where(goqu.I("owner_id").Eq(ownerID), goqu.I("active").Eq(1)).
		Order(goqu.I("name").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build entities by owner query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list entities by owner: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var row entityRow
		if err := rows.Scan(&row.ID, &row.Name, &row.AvatarURL, &row.Description, &row.AccentColor,
			&row.Platform, &row.OwnerID, &row.OwnerDisplayName, &row.OwnerNotifyOptIn, &row.APIKeyHash,
			&row.KeySalt, &row.Active, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		model, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *model)
	}

	return out, rows.Err()
}

// RegenerateAPIKey atomically replaces an Entity's hash+salt, invalidating
// the prior key immediately (spec.md §3 Entity invariant).
func (r *Registry) RegenerateAPIKey(ctx context.Context, entityID, apiKeyHash string, salt []byte) error {
	query, _, err := r.goqu.Update(r.tableEntities).Set(goqu.Record{
		"api_key_hash": apiKeyHash,
		"key_salt":     hexEncode(salt),
	}).Where(goqu.I("id").Eq(entityID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build regenerate key query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("regenerate api key for %q: %w", entityID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

// Deactivate soft-hides an Entity from hot-path queries without deleting
// its rows (spec.md §4.1 "Delete semantics").
func (r *Registry) Deactivate(ctx context.Context, entityID string) error {
	query, _, err := r.goqu.Update(r.tableEntities).Set(goqu.Record{
		"active": 0,
	}).Where(goqu.I("id").Eq(entityID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build deactivate query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("deactivate entity %q: %w", entityID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteEntity hard-deletes an Entity and all of its dependent rows in one
// transaction, in the order required by spec.md §4.1: EntityServer rows,
// server requests, OAuth artifacts, then the Entity itself.
func (r *Registry) DeleteEntity(ctx context.Context, entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	statements := []goqu.DeleteDataset{
		*r.goqu.Delete(r.tableEntityServers).Where(goqu.I("entity_id").Eq(entityID)),
		*r.goqu.Delete(r.tableServerRequests).Where(goqu.I("entity_id").Eq(entityID)),
		*r.goqu.Delete(r.tableOAuthAuthCodes).Where(goqu.I("entity_id").Eq(entityID)),
		*r.goqu.Delete(r.tableOAuthAccess).Where(goqu.I("entity_id").Eq(entityID)),
		*r.goqu.Delete(r.tableOAuthRefresh).Where(goqu.I("entity_id").Eq(entityID)),
		*r.goqu.Delete(r.tableEntities).Where(goqu.I("id").Eq(entityID)),
	}

	for _, ds := range statements {
		query, _, err := ds.ToSQL()
		if err != nil {
			return fmt.Errorf("build delete query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("delete entity %q: %w", entityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entity delete: %w", err)
	}

	return nil
}

// EntityChannelRow is one row of entities_for_channel's result: an active
// Entity joined with its EntityServer permission set for a single server.
type EntityChannelRow struct {
	Entity          Entity
	ChannelWhitelist Set
	ToolWhitelist    Set
	WatchChannels    Set
	BlockedChannels  Set
	RoleID           string
	Triggers         []string
}

// EntitiesForChannel is the Router's hot-path candidate query: every active
// Entity whose EntityServer(server) channel whitelist is empty ("all") or
// contains channelID. It relies on the index on entity_servers.server_id
// (spec.md §4.1) and performs the whitelist containment check as a cheap
// post-filter over the already-narrowed, indexed result set rather than a
// table scan.
func (r *Registry) EntitiesForChannel(ctx context.Context, serverID, channelID string) ([]EntityChannelRow, error) {
	query, _, err := r.goqu.From(r.tableEntityServers).
		Join(r.tableEntities, goqu.On(goqu.I("entity_servers.entity_id").Eq(goqu.I("entities.id")))).
		Select(
			goqu.I("entities.id"), goqu.I("entities.name"), goqu.I("entities.avatar_url"),
			goqu.I("entities.description"), goqu.I("entities.accent_color"), goqu.I("entities.platform"),
			goqu.I("entities.owner_id"), goqu.I("entities.owner_display_name"), goqu.I("entities.owner_notify_opt_in"),
			goqu.I("entities.api_key_hash"), goqu.I("entities.key_salt"), goqu.I("entities.active"), goqu.I("entities.created_at"),
			goqu.I("entity_servers.channel_whitelist"), goqu.I("entity_servers.tool_whitelist"),
			goqu.I("entity_servers.watch_channels"), goqu.I("entity_servers.blocked_channels"),
			goqu.I("entity_servers.role_id"), goqu.I("entity_servers.triggers"),
		).
		Where(
			goqu.I("entity_servers.server_id").Eq(serverID),
			goqu.I("entities.active").Eq(1),
		).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build entities_for_channel query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("entities_for_channel: %w", err)
	}
	defer rows.Close()

	var out []EntityChannelRow
	for rows.Next() {
		var (
			eRow                                                    entityRow
			channelWhitelist, toolWhitelist, watch, blocked, trig   string
			roleID                                                  string
		)
		if err := rows.Scan(&eRow.ID, &eRow.Name, &eRow.AvatarURL, &eRow.Description, &eRow.AccentColor,
			&eRow.Platform, &eRow.OwnerID, &eRow.OwnerDisplayName, &eRow.OwnerNotifyOptIn, &eRow.APIKeyHash,
			&eRow.KeySalt, &eRow.Active, &eRow.CreatedAt, &channelWhitelist, &toolWhitelist, &watch, &blocked, &roleID, &trig); err != nil {
			return nil, fmt.Errorf("scan entities_for_channel row: %w", err)
		}

		entity, err := eRow.toModel()
		if err != nil {
			return nil, err
		}

		channels, err := parseSetColumn(channelWhitelist)
		if err != nil {
			return nil, fmt.Errorf("parse channel_whitelist: %w", err)
		}

		// Post-filter: the index already narrowed the result set to
		// this server; this containment check is O(1) per row, not a
		// table scan.
		if !channels.Empty() && !channels.Has(channelID) {
			continue
		}

		toolSet, err := parseSetColumn(toolWhitelist)
		if err != nil {
			return nil, fmt.Errorf("parse tool_whitelist: %w", err)
		}
		watchSet, err := parseSetColumn(watch)
		if err != nil {
			return nil, fmt.Errorf("parse watch_channels: %w", err)
		}
		blockedSet, err := parseSetColumn(blocked)
		if err != nil {
			return nil, fmt.Errorf("parse blocked_channels: %w", err)
		}

		triggers, err := parseSetColumn(trig)
		if err != nil {
			return nil, fmt.Errorf("parse triggers: %w", err)
		}

		out = append(out, EntityChannelRow{
			Entity:           *entity,
			ChannelWhitelist: channels,
			ToolWhitelist:    toolSet,
			WatchChannels:    watchSet,
			BlockedChannels:  blockedSet,
			RoleID:           roleID,
			Triggers:         triggers.Slice(),
		})
	}

	return out, rows.Err()
}

// RoleEntityMap returns role_id -> entity_id for active Entities on a
// server, used to resolve @-mentions of Entity roles.
func (r *Registry) RoleEntityMap(ctx context.Context, serverID string) (map[string]string, error) {
	query, _, err := r.goqu.From(r.tableEntityServers).
		Join(r.tableEntities, goqu.On(goqu.I("entity_servers.entity_id").Eq(goqu.I("entities.id")))).
		Select(goqu.I("entity_servers.role_id"), goqu.I("entities.id")).
		Where(
			goqu.I("entity_servers.server_id").Eq(serverID),
			goqu.I("entities.active").Eq(1),
			goqu.I("entity_servers.role_id").Neq(""),
		).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build role_entity_map query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("role_entity_map: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var roleID, entityID string
		if err := rows.Scan(&roleID, &entityID); err != nil {
			return nil, fmt.Errorf("scan role_entity_map row: %w", err)
		}
		out[roleID] = entityID
	}

	return out, rows.Err()
}
