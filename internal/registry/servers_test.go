package registry

import (
	"context"
	"errors"
	"testing"
)

func TestServerSettingsDefaultsWhenUnset(t *testing.T) {
	r := newTestRegistry(t)

	s, err := r.GetServerSettings(context.Background(), "server-1")
	if err != nil {
		t.Fatalf("GetServerSettings: %v", err)
	}
	if s.ServerID != "server-1" || s.AnnounceChannelID != "" {
		t.Fatalf("expected zero-value default, got %+v", s)
	}
}

func TestUpsertServerSettingsInsertThenUpdate(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.UpsertServerSettings(ctx, ServerSettings{
		ServerID:          "server-1",
		AnnounceChannelID: "chan-announce",
	}); err != nil {
		t.Fatalf("UpsertServerSettings (insert): %v", err)
	}

	if err := r.UpsertServerSettings(ctx, ServerSettings{
		ServerID:          "server-1",
		AnnounceChannelID: "chan-other",
	}); err != nil {
		t.Fatalf("UpsertServerSettings (update): %v", err)
	}

	got, err := r.GetServerSettings(ctx, "server-1")
	if err != nil {
		t.Fatalf("GetServerSettings: %v", err)
	}
	if got.AnnounceChannelID != "chan-other" {
		t.Fatalf("expected updated value, got %+v", got)
	}
}

func TestServerRequestReviewTerminalState(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	e, err := r.CreateEntity(ctx, testEntity("owner-1"))
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	req, err := r.CreateServerRequest(ctx, ServerRequest{
		EntityID:    e.ID,
		ServerID:    "server-1",
		RequesterID: "owner-1",
	})
	if err != nil {
		t.Fatalf("CreateServerRequest: %v", err)
	}
	if req.Status != RequestPending {
		t.Fatalf("expected pending status, got %q", req.Status)
	}

	if err := r.ReviewServerRequest(ctx, req.ID, "admin-1", RequestApproved); err != nil {
		t.Fatalf("ReviewServerRequest: %v", err)
	}

	got, err := r.GetServerRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetServerRequest: %v", err)
	}
	if got.Status != RequestApproved || got.ReviewerID != "admin-1" || !got.ReviewedAt.Valid {
		t.Fatalf("expected approved+reviewed request, got %+v", got)
	}

	if err := r.ReviewServerRequest(ctx, req.ID, "admin-2", RequestRejected); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState re-reviewing, got %v", err)
	}
}

func TestPendingServerRequestsExcludesReviewed(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	e, err := r.CreateEntity(ctx, testEntity("owner-1"))
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	pending, err := r.CreateServerRequest(ctx, ServerRequest{EntityID: e.ID, ServerID: "server-2", RequesterID: "owner-1"})
	if err != nil {
		t.Fatalf("CreateServerRequest: %v", err)
	}
	reviewed, err := r.CreateServerRequest(ctx, ServerRequest{EntityID: e.ID, ServerID: "server-2", RequesterID: "owner-1"})
	if err != nil {
		t.Fatalf("CreateServerRequest: %v", err)
	}
	if err := r.ReviewServerRequest(ctx, reviewed.ID, "admin-1", RequestRejected); err != nil {
		t.Fatalf("ReviewServerRequest: %v", err)
	}

	list, err := r.PendingServerRequests(ctx, "server-2")
	if err != nil {
		t.Fatalf("PendingServerRequests: %v", err)
	}
	if len(list) != 1 || list[0].ID != pending.ID {
		t.Fatalf("expected only the pending request, got %+v", list)
	}
}
