package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"
)

// ─── ServerSettings ───

// GetServerSettings fetches a server's announcement configuration. Returns
// a zero-value ServerSettings (not an error) if none has been set yet,
// mirroring the "one per server id, defaulted" convention in spec.md §3.
func (r *Registry) GetServerSettings(ctx context.Context, serverID string) (*ServerSettings, error) {
	query, _, err := r.goqu.From(r.tableServerSettings).
		Select("server_id", "announce_channel_id", "announce_message", "default_template_id").
		Where(goqu.I("server_id").Eq(serverID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get server_settings query: %w", err)
	}

	var s ServerSettings
	err = r.db.QueryRowContext(ctx, query).Scan(&s.ServerID, &s.AnnounceChannelID, &s.AnnounceMessage, &s.DefaultTemplateID)
	if errors.Is(err, sql.ErrNoRows) {
		return &ServerSettings{ServerID: serverID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get server_settings %q: %w", serverID, err)
	}

	return &s, nil
}

// UpsertServerSettings inserts or replaces a server's settings row.
func (r *Registry) UpsertServerSettings(ctx context.Context, s ServerSettings) error {
	record := goqu.Record{
		"server_id":           s.ServerID,
		"announce_channel_id": s.AnnounceChannelID,
		"announce_message":    s.AnnounceMessage,
		"default_template_id": s.DefaultTemplateID,
	}

	existing, err := r.GetServerSettings(ctx, s.ServerID)
	if err != nil {
		return err
	}

	if existing.AnnounceChannelID == "" && existing.AnnounceMessage == "" && existing.DefaultTemplateID == "" {
		query, _, err := r.goqu.Insert(r.tableServerSettings).Rows(record).ToSQL()
		if err != nil {
			return fmt.Errorf("build insert server_settings query: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			// Fall through to update in case the row exists but is
			// all-blank (first write raced, or row pre-seeded empty).
			updateQuery, _, uerr := r.goqu.Update(r.tableServerSettings).Set(record).
				Where(goqu.I("server_id").Eq(s.ServerID)).ToSQL()
			if uerr != nil {
				return fmt.Errorf("build update server_settings query: %w", uerr)
			}
			if _, err := r.db.ExecContext(ctx, updateQuery); err != nil {
				return fmt.Errorf("upsert server_settings: %w", err)
			}
		}
		return nil
	}

	query, _, err := r.goqu.Update(r.tableServerSettings).Set(record).
		Where(goqu.I("server_id").Eq(s.ServerID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build update server_settings query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("update server_settings: %w", err)
	}

	return nil
}

// ─── ServerTemplate ───

func (r *Registry) CreateServerTemplate(ctx context.Context, t ServerTemplate) (*ServerTemplate, error) {
	t.ID = ulid.Make().String()

	channelsCol, err := setColumn(t.Channels)
	if err != nil {
		return nil, err
	}
	toolsCol, err := setColumn(t.Tools)
	if err != nil {
		return nil, err
	}

	query, _, err := r.goqu.Insert(r.tableServerTemplate).Rows(goqu.Record{
		"id":        t.ID,
		"server_id": t.ServerID,
		"name":      t.Name,
		"channels":  channelsCol,
		"tools":     toolsCol,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build insert server_template query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create server_template: %w", err)
	}

	return &t, nil
}

func (r *Registry) GetServerTemplate(ctx context.Context, id string) (*ServerTemplate, error) {
	query, _, err := r.goqu.From(r.tableServerTemplate).
		Select("id", "server_id", "name", "channels", "tools").
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get server_template query: %w", err)
	}

	var (
		t                         ServerTemplate
		channelsCol, toolsCol     string
	)
	err = r.db.QueryRowContext(ctx, query).Scan(&t.ID, &t.ServerID, &t.Name, &channelsCol, &toolsCol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get server_template %q: %w", id, err)
	}

	t.Channels, err = parseSetColumn(channelsCol)
	if err != nil {
		return nil, fmt.Errorf("parse channels: %w", err)
	}
	t.Tools, err = parseSetColumn(toolsCol)
	if err != nil {
		return nil, fmt.Errorf("parse tools: %w", err)
	}

	return &t, nil
}

func (r *Registry) ServerTemplatesByServer(ctx context.Context, serverID string) ([]ServerTemplate, error) {
	query, _, err := r.goqu.From(r.tableServerTemplate).
		Select("id", "server_id", "name", "channels", "tools").
		Where(goqu.I("server_id").Eq(serverID)).
		Order(goqu.I("name").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list server_templates query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list server_templates: %w", err)
	}
	defer rows.Close()

	var out []ServerTemplate
	for rows.Next() {
		var (
			t                     ServerTemplate
			channelsCol, toolsCol string
		)
		if err := rows.Scan(&t.ID, &t.ServerID, &t.Name, &channelsCol, &toolsCol); err != nil {
			return nil, fmt.Errorf("scan server_template row: %w", err)
		}
		t.Channels, err = parseSetColumn(channelsCol)
		if err != nil {
			return nil, fmt.Errorf("parse channels: %w", err)
		}
		t.Tools, err = parseSetColumn(toolsCol)
		if err != nil {
			return nil, fmt.Errorf("parse tools: %w", err)
		}
		out = append(out, t)
	}

	return out, rows.Err()
}

// ─── ServerRequest ───

func (r *Registry) CreateServerRequest(ctx context.Context, req ServerRequest) (*ServerRequest, error) {
	req.ID = ulid.Make().String()
	req.Status = RequestPending
	req.CreatedAt = time.Now().UTC()

	query, _, err := r.goqu.Insert(r.tableServerRequests).Rows(goqu.Record{
		"id":                     req.ID,
		"entity_id":              req.EntityID,
		"server_id":              req.ServerID,
		"status":                 req.Status,
		"requester_id":           req.RequesterID,
		"requester_display_name": req.RequesterDisplayName,
		"reviewer_id":            "",
		"reviewed_at":            "",
		"created_at":             req.CreatedAt.Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build insert server_request query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create server_request: %w", err)
	}

	return &req, nil
}

func (r *Registry) GetServerRequest(ctx context.Context, id string) (*ServerRequest, error) {
	query, _, err := r.goqu.From(r.tableServerRequests).
		Select("id", "entity_id", "server_id", "status", "requester_id", "requester_display_name",
			"reviewer_id", "reviewed_at", "created_at").
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get server_request query: %w", err)
	}

	return r.scanServerRequest(r.db.QueryRowContext(ctx, query))
}

func (r *Registry) scanServerRequest(row *sql.Row) (*ServerRequest, error) {
	var (
		req                ServerRequest
		reviewedAt         string
		createdAt          string
	)
	err := row.Scan(&req.ID, &req.EntityID, &req.ServerID, &req.Status, &req.RequesterID,
		&req.RequesterDisplayName, &req.ReviewerID, &reviewedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan server_request: %w", err)
	}

	req.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	if reviewedAt != "" {
		t, err := time.Parse(time.RFC3339, reviewedAt)
		if err != nil {
			return nil, fmt.Errorf("parse reviewed_at: %w", err)
		}
		req.ReviewedAt = newTimeNull(t)
	}

	return &req, nil
}

// PendingServerRequests lists pending join requests for a server.
func (r *Registry) PendingServerRequests(ctx context.Context, serverID string) ([]ServerRequest, error) {
	query, _, err := r.goqu.From(r.tableServerRequests).
		Select("id", "entity_id", "server_id", "status", "requester_id", "requester_display_name",
			"reviewer_id", "reviewed_at", "created_at").
		Where(goqu.I("server_id").Eq(serverID), goqu.I("status").Eq(RequestPending)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build pending server_requests query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending server_requests: %w", err)
	}
	defer rows.Close()

	var out []ServerRequest
	for rows.Next() {
		var (
			req        ServerRequest
			reviewedAt string
			createdAt  string
		)
		if err := rows.Scan(&req.ID, &req.EntityID, &req.ServerID, &req.Status, &req.RequesterID,
			&req.RequesterDisplayName, &req.ReviewerID, &reviewedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan server_request row: %w", err)
		}
		req.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if reviewedAt != "" {
			t, err := time.Parse(time.RFC3339, reviewedAt)
			if err != nil {
				return nil, fmt.Errorf("parse reviewed_at: %w", err)
			}
			req.ReviewedAt = newTimeNull(t)
		}
		out = append(out, req)
	}

	return out, rows.Err()
}

// ReviewServerRequest transitions a pending request to approved/rejected.
// Terminal states are write-once (spec.md §3): reviewing an already-terminal
// request returns ErrTerminalState.
func (r *Registry) ReviewServerRequest(ctx context.Context, id, reviewerID, status string) error {
	if status != RequestApproved && status != RequestRejected {
		return fmt.Errorf("invalid review status %q", status)
	}

	existing, err := r.GetServerRequest(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status != RequestPending {
		return ErrTerminalState
	}

	query, _, err := r.goqu.Update(r.tableServerRequests).Set(goqu.Record{
		"status":      status,
		"reviewer_id": reviewerID,
		"reviewed_at": time.Now().UTC().Format(time.RFC3339),
	}).Where(goqu.I("id").Eq(id), goqu.I("status").Eq(RequestPending)).ToSQL()
	if err != nil {
		return fmt.Errorf("build review server_request query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("review server_request %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTerminalState
	}

	return nil
}
