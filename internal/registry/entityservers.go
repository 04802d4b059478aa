package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
)

type entityServerRow struct {
	EntityID          string
	ServerID          string
	ChannelWhitelist  string
	ToolWhitelist     string
	WatchChannels     string
	BlockedChannels   string
	RoleID            string
	AnnounceChannelID string
	TemplateID        string
	Triggers          string
}

func (row entityServerRow) toModel() (*EntityServer, error) {
	channels, err := parseSetColumn(row.ChannelWhitelist)
	if err != nil {
		return nil, fmt.Errorf("parse channel_whitelist: %w", err)
	}
	tools, err := parseSetColumn(row.ToolWhitelist)
	if err != nil {
		return nil, fmt.Errorf("parse tool_whitelist: %w", err)
	}
	watch, err := parseSetColumn(row.WatchChannels)
	if err != nil {
		return nil, fmt.Errorf("parse watch_channels: %w", err)
	}
	blocked, err := parseSetColumn(row.BlockedChannels)
	if err != nil {
		return nil, fmt.Errorf("parse blocked_channels: %w", err)
	}
	triggers, err := parseSetColumn(row.Triggers)
	if err != nil {
		return nil, fmt.Errorf("parse triggers: %w", err)
	}

	return &EntityServer{
		EntityID:          row.EntityID,
		ServerID:          row.ServerID,
		ChannelWhitelist:  channels,
		ToolWhitelist:     tools,
		WatchChannels:     watch,
		BlockedChannels:   blocked,
		RoleID:            row.RoleID,
		AnnounceChannelID: row.AnnounceChannelID,
		TemplateID:        row.TemplateID,
		Triggers:          triggers.Slice(),
	}, nil
}

// NormalizeEntityServer re-establishes the spec.md §4.2 invariants before a
// write commits:
//
//	admin ceiling:  channels ⊇ (watch ∪ blocked)
//	owner tuning:   watch ∩ blocked = ∅
//
// Any manual edit to channels or tools detaches a bound template.
func NormalizeEntityServer(es *EntityServer) {
	if !es.ChannelWhitelist.Empty() {
		es.WatchChannels = es.WatchChannels.Intersect(es.ChannelWhitelist)
		es.BlockedChannels = es.BlockedChannels.Intersect(es.ChannelWhitelist)
	}
	// watch and blocked must be disjoint; blocked wins ties deterministically
	// (a channel explicitly blocked by the owner should not also auto-respond).
	es.WatchChannels = es.WatchChannels.Without(es.BlockedChannels)
}

// UpsertEntityServer inserts or replaces the (entity, server) permission
// row, after re-establishing invariants via NormalizeEntityServer.
func (r *Registry) UpsertEntityServer(ctx context.Context, es EntityServer) (*EntityServer, error) {
	NormalizeEntityServer(&es)

	channelCol, err := setColumn(es.ChannelWhitelist)
	if err != nil {
		return nil, err
	}
	toolCol, err := setColumn(es.ToolWhitelist)
	if err != nil {
		return nil, err
	}
	watchCol, err := setColumn(es.WatchChannels)
	if err != nil {
		return nil, err
	}
	blockedCol, err := setColumn(es.BlockedChannels)
	if err != nil {
		return nil, err
	}
	triggersCol, err := setColumn(NewSet(es.Triggers...))
	if err != nil {
		return nil, err
	}

	record := goqu.Record{
		"entity_id":           es.EntityID,
		"server_id":           es.ServerID,
		"channel_whitelist":   channelCol,
		"tool_whitelist":      toolCol,
		"watch_channels":      watchCol,
		"blocked_channels":    blockedCol,
		"role_id":             es.RoleID,
		"announce_channel_id": es.AnnounceChannelID,
		"template_id":         es.TemplateID,
		"triggers":            triggersCol,
	}

	existing, err := r.GetEntityServer(ctx, es.EntityID, es.ServerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if existing == nil {
		query, _, err := r.goqu.Insert(r.tableEntityServers).Rows(record).ToSQL()
		if err != nil {
			return nil, fmt.Errorf("build insert entity_server query: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return nil, fmt.Errorf("create entity_server: %w", err)
		}
	} else {
		query, _, err := r.goqu.Update(r.tableEntityServers).Set(record).
			Where(goqu.I("entity_id").Eq(es.EntityID), goqu.I("server_id").Eq(es.ServerID)).
			ToSQL()
		if err != nil {
			return nil, fmt.Errorf("build update entity_server query: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return nil, fmt.Errorf("update entity_server: %w", err)
		}
	}

	return &es, nil
}

// GetEntityServer fetches a single permission row.
func (r *Registry) GetEntityServer(ctx context.Context, entityID, serverID string) (*EntityServer, error) {
	query, _, err := r.goqu.From(r.tableEntityServers).
		Select("entity_id", "server_id", "channel_whitelist", "tool_whitelist",
			"watch_channels", "blocked_channels", "role_id", "announce_channel_id",
			"template_id", "triggers").
		Where(goqu.I("entity_id").Eq(entityID), goqu.I("server_id").Eq(serverID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get entity_server query: %w", err)
	}

	var row entityServerRow
	err = r.db.QueryRowContext(ctx, query).Scan(&row.EntityID, &row.ServerID, &row.ChannelWhitelist,
		&row.ToolWhitelist, &row.WatchChannels, &row.BlockedChannels, &row.RoleID,
		&row.AnnounceChannelID, &row.TemplateID, &row.Triggers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity_server (%q, %q): %w", entityID, serverID, err)
	}

	return row.toModel()
}

// EntityServersByEntity lists every server permission row for an Entity.
func (r *Registry) EntityServersByEntity(ctx context.Context, entityID string) ([]EntityServer, error) {
	query, _, err := r.goqu.From(r.tableEntityServers).
		Select("entity_id", "server_id", "channel_whitelist", "tool_whitelist",
			"watch_channels", "blocked_channels", "role_id", "announce_channel_id",
			"template_id", "triggers").
		Where(goqu.I("entity_id").Eq(entityID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list entity_servers query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list entity_servers: %w", err)
	}
	defer rows.Close()

	var out []EntityServer
	for rows.Next() {
		var row entityServerRow
		if err := rows.Scan(&row.EntityID, &row.ServerID, &row.ChannelWhitelist, &row.ToolWhitelist,
			&row.WatchChannels, &row.BlockedChannels, &row.RoleID, &row.AnnounceChannelID,
			&row.TemplateID, &row.Triggers); err != nil {
			return nil, fmt.Errorf("scan entity_server row: %w", err)
		}
		model, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *model)
	}

	return out, rows.Err()
}

// RemoveEntityServer deletes the permission row. Role cleanup on the
// platform (deleting the auto-created mentionable role) is the caller's
// responsibility (spec.md §4.2 "removing the EntityServer MUST trigger
// role cleanup") — the Registry only owns the row, not the platform side
// effect, so `leave_server` and admin removal call this then best-effort
// delete the role via the Webhook Proxy / Discord REST client.
func (r *Registry) RemoveEntityServer(ctx context.Context, entityID, serverID string) error {
	query, _, err := r.goqu.Delete(r.tableEntityServers).
		Where(goqu.I("entity_id").Eq(entityID), goqu.I("server_id").Eq(serverID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build remove entity_server query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("remove entity_server: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

// ApplyTemplate copies a ServerTemplate's channels/tools onto an
// EntityServer one-shot (spec.md §4.2 "applied... is a convenience, not a
// live binding"). It does not set TemplateID.
func ApplyTemplate(es *EntityServer, tmpl ServerTemplate) {
	es.ChannelWhitelist = tmpl.Channels
	es.ToolWhitelist = tmpl.Tools
	NormalizeEntityServer(es)
}

// BindTemplate copies a ServerTemplate's channels/tools onto an
// EntityServer and records the binding, so future template edits (via
// PropagateTemplate) continue to apply.
func BindTemplate(es *EntityServer, tmpl ServerTemplate) {
	ApplyTemplate(es, tmpl)
	es.TemplateID = tmpl.ID
}

// PropagateTemplate re-applies an edited template to every EntityServer row
// still bound to it (TemplateID == tmpl.ID), leaving rows that detached
// (manual edit) untouched.
func (r *Registry) PropagateTemplate(ctx context.Context, tmpl ServerTemplate) error {
	query, _, err := r.goqu.From(r.tableEntityServers).
		Select("entity_id", "server_id", "channel_whitelist", "tool_whitelist",
			"watch_channels", "blocked_channels", "role_id", "announce_channel_id",
			"template_id", "triggers").
		Where(goqu.I("template_id").Eq(tmpl.ID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build propagate template query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("list template-bound entity_servers: %w", err)
	}

	var bound []EntityServer
	for rows.Next() {
		var row entityServerRow
		if err := rows.Scan(&row.EntityID, &row.ServerID, &row.ChannelWhitelist, &row.ToolWhitelist,
			&row.WatchChannels, &row.BlockedChannels, &row.RoleID, &row.AnnounceChannelID,
			&row.TemplateID, &row.Triggers); err != nil {
			rows.Close()
			return fmt.Errorf("scan entity_server row: %w", err)
		}
		model, err := row.toModel()
		if err != nil {
			rows.Close()
			return err
		}
		bound = append(bound, *model)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, es := range bound {
		BindTemplate(&es, tmpl)
		if _, err := r.UpsertEntityServer(ctx, es); err != nil {
			return fmt.Errorf("propagate template to entity %q server %q: %w", es.EntityID, es.ServerID, err)
		}
	}

	return nil
}
