package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"
)

// ─── OAuthClient (RFC 7591 dynamic registration) ───

func (r *Registry) CreateOAuthClient(ctx context.Context, c OAuthClient) (*OAuthClient, error) {
	c.ID = "client_" + ulid.Make().String()
	c.CreatedAt = time.Now().UTC()

	redirectJSON, err := json.Marshal(c.RedirectURIs)
	if err != nil {
		return nil, fmt.Errorf("marshal redirect_uris: %w", err)
	}
	grantJSON, err := json.Marshal(c.GrantTypes)
	if err != nil {
		return nil, fmt.Errorf("marshal grant_types: %w", err)
	}
	responseJSON, err := json.Marshal(c.ResponseTypes)
	if err != nil {
		return nil, fmt.Errorf("marshal response_types: %w", err)
	}

	query, _, err := r.goqu.Insert(r.tableOAuthClients).Rows(goqu.Record{
		"id":                         c.ID,
		"name":                       c.Name,
		"redirect_uris":              string(redirectJSON),
		"grant_types":                string(grantJSON),
		"response_types":             string(responseJSON),
		"token_endpoint_auth_method": c.TokenEndpointAuthMethod,
		"created_at":                 c.CreatedAt.Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build insert oauth_client query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create oauth_client: %w", err)
	}

	return &c, nil
}

func (r *Registry) GetOAuthClient(ctx context.Context, id string) (*OAuthClient, error) {
	query, _, err := r.goqu.From(r.tableOAuthClients).
		Select("id", "name", "redirect_uris", "grant_types", "response_types",
			"token_endpoint_auth_method", "created_at").
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get oauth_client query: %w", err)
	}

	var (
		c                                       OAuthClient
		redirectJSON, grantJSON, responseJSON   string
		createdAt                               string
	)
	err = r.db.QueryRowContext(ctx, query).Scan(&c.ID, &c.Name, &redirectJSON, &grantJSON,
		&responseJSON, &c.TokenEndpointAuthMethod, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get oauth_client %q: %w", id, err)
	}

	if err := json.Unmarshal([]byte(redirectJSON), &c.RedirectURIs); err != nil {
		return nil, fmt.Errorf("unmarshal redirect_uris: %w", err)
	}
	if err := json.Unmarshal([]byte(grantJSON), &c.GrantTypes); err != nil {
		return nil, fmt.Errorf("unmarshal grant_types: %w", err)
	}
	if err := json.Unmarshal([]byte(responseJSON), &c.ResponseTypes); err != nil {
		return nil, fmt.Errorf("unmarshal response_types: %w", err)
	}
	c.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &c, nil
}

// ─── OAuthAuthCode (one-time, TTL 10 min) ───

func (r *Registry) CreateAuthCode(ctx context.Context, ac OAuthAuthCode) (*OAuthAuthCode, error) {
	ac.Code = "code_" + ulid.Make().String()
	ac.CreatedAt = time.Now().UTC()

	query, _, err := r.goqu.Insert(r.tableOAuthAuthCodes).Rows(goqu.Record{
		"code":             ac.Code,
		"client_id":        ac.ClientID,
		"redirect_uri":     ac.RedirectURI,
		"scope":            ac.Scope,
		"code_challenge":   ac.CodeChallenge,
		"entity_id":        ac.EntityID,
		"platform_user_id": ac.PlatformUserID,
		"expires_at":       ac.ExpiresAt.Format(time.RFC3339),
		"created_at":       ac.CreatedAt.Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build insert auth_code query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create auth_code: %w", err)
	}

	return &ac, nil
}

// ConsumeAuthCode is a destructive fetch: it returns the code's data and
// deletes the row in the same transaction, so a second consume of the same
// code returns ErrNotFound within the same process lifetime (spec.md §8).
func (r *Registry) ConsumeAuthCode(ctx context.Context, code string) (*OAuthAuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	selectQuery, _, err := r.goqu.From(r.tableOAuthAuthCodes).
		Select("code", "client_id", "redirect_uri", "scope", "code_challenge",
			"entity_id", "platform_user_id", "expires_at", "created_at").
		Where(goqu.I("code").Eq(code)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build consume auth_code select: %w", err)
	}

	var (
		ac                           OAuthAuthCode
		expiresAt, createdAt         string
	)
	err = tx.QueryRowContext(ctx, selectQuery).Scan(&ac.Code, &ac.ClientID, &ac.RedirectURI, &ac.Scope,
		&ac.CodeChallenge, &ac.EntityID, &ac.PlatformUserID, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume auth_code select %q: %w", code, err)
	}

	deleteQuery, _, err := r.goqu.Delete(r.tableOAuthAuthCodes).Where(goqu.I("code").Eq(code)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build consume auth_code delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, deleteQuery); err != nil {
		return nil, fmt.Errorf("consume auth_code delete %q: %w", code, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consume auth_code: %w", err)
	}

	ac.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	ac.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &ac, nil
}

// ─── OAuthAccessToken (revocation bookkeeping) ───

func (r *Registry) RecordAccessToken(ctx context.Context, at OAuthAccessToken) error {
	at.CreatedAt = time.Now().UTC()

	query, _, err := r.goqu.Insert(r.tableOAuthAccess).Rows(goqu.Record{
		"jti":              at.JTI,
		"entity_id":        at.EntityID,
		"platform_user_id": at.PlatformUserID,
		"client_id":        at.ClientID,
		"scope":            at.Scope,
		"expires_at":       at.ExpiresAt.Time.Time.Format(time.RFC3339),
		"revoked":          0,
		"created_at":       at.CreatedAt.Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert access_token query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("record access_token: %w", err)
	}

	return nil
}

// IsAccessTokenRevoked reports whether the jti has been revoked, or is
// unknown to the Registry (treated as revoked/invalid, fail closed).
func (r *Registry) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	query, _, err := r.goqu.From(r.tableOAuthAccess).
		Select("revoked").
		Where(goqu.I("jti").Eq(jti)).
		ToSQL()
	if err != nil {
		return true, fmt.Errorf("build revoked check query: %w", err)
	}

	var revoked int
	err = r.db.QueryRowContext(ctx, query).Scan(&revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("check access_token revoked %q: %w", jti, err)
	}

	return revoked != 0, nil
}

// RevokeAccessToken marks a jti revoked (spec.md §8: "after refresh,
// is_revoked(j) = true").
func (r *Registry) RevokeAccessToken(ctx context.Context, jti string) error {
	query, _, err := r.goqu.Update(r.tableOAuthAccess).
		Set(goqu.Record{"revoked": 1}).
		Where(goqu.I("jti").Eq(jti)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build revoke access_token query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("revoke access_token %q: %w", jti, err)
	}

	return nil
}

// ─── OAuthRefreshToken (opaque, TTL 30 days, single-use) ───

func (r *Registry) CreateRefreshToken(ctx context.Context, rt OAuthRefreshToken) (*OAuthRefreshToken, error) {
	rt.Token = "refresh_" + ulid.Make().String()
	rt.CreatedAt = time.Now().UTC()

	query, _, err := r.goqu.Insert(r.tableOAuthRefresh).Rows(goqu.Record{
		"token":            rt.Token,
		"access_token_jti": rt.AccessTokenJTI,
		"entity_id":        rt.EntityID,
		"platform_user_id": rt.PlatformUserID,
		"client_id":        rt.ClientID,
		"scope":            rt.Scope,
		"expires_at":       rt.ExpiresAt.Time.Time.Format(time.RFC3339),
		"created_at":       rt.CreatedAt.Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build insert refresh_token query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create refresh_token: %w", err)
	}

	return &rt, nil
}

// ConsumeRefreshToken is a destructive fetch, making the token single-use
// (spec.md §3, §8: "makes refresh1 fail on any subsequent use").
func (r *Registry) ConsumeRefreshToken(ctx context.Context, token string) (*OAuthRefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	selectQuery, _, err := r.goqu.From(r.tableOAuthRefresh).
		Select("token", "access_token_jti", "entity_id", "platform_user_id", "client_id", "scope",
			"expires_at", "created_at").
		Where(goqu.I("token").Eq(token)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build consume refresh_token select: %w", err)
	}

	var (
		rt                   OAuthRefreshToken
		expiresAt, createdAt string
	)
	err = tx.QueryRowContext(ctx, selectQuery).Scan(&rt.Token, &rt.AccessTokenJTI, &rt.EntityID,
		&rt.PlatformUserID, &rt.ClientID, &rt.Scope, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh_token select %q: %w", token, err)
	}

	deleteQuery, _, err := r.goqu.Delete(r.tableOAuthRefresh).Where(goqu.I("token").Eq(token)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build consume refresh_token delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, deleteQuery); err != nil {
		return nil, fmt.Errorf("consume refresh_token delete %q: %w", token, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consume refresh_token: %w", err)
	}

	expiresAtTime, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	rt.ExpiresAt = newTimeNull(expiresAtTime)

	rt.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &rt, nil
}
