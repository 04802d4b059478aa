package registry

import (
	"context"
	"testing"
)

func TestNormalizeEntityServerWatchBlockedDisjoint(t *testing.T) {
	es := &EntityServer{
		ChannelWhitelist: NewSet("a", "b", "c"),
		WatchChannels:    NewSet("a", "b"),
		BlockedChannels:  NewSet("b", "d"),
	}

	NormalizeEntityServer(es)

	if es.BlockedChannels.Slice()[0] != "b" {
		t.Fatalf("expected blocked to retain the whitelisted member, got %v", es.BlockedChannels.Slice())
	}
	if es.WatchChannels.Has("b") {
		t.Fatal("expected watch to drop the channel also blocked (blocked wins ties)")
	}
	if !es.WatchChannels.Has("a") {
		t.Fatal("expected watch to retain the non-conflicting channel")
	}
	if es.BlockedChannels.Has("d") {
		t.Fatal("expected blocked to drop the channel outside the whitelist ceiling")
	}
}

func TestNormalizeEntityServerEmptyWhitelistMeansAll(t *testing.T) {
	es := &EntityServer{
		WatchChannels:   NewSet("a"),
		BlockedChannels: NewSet("b"),
	}

	NormalizeEntityServer(es)

	if !es.WatchChannels.Has("a") || !es.BlockedChannels.Has("b") {
		t.Fatalf("expected an empty whitelist (ceiling = all) to leave watch/blocked untouched, got %+v", es)
	}
}

func TestUpsertAndGetEntityServer(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	e, err := r.CreateEntity(ctx, testEntity("owner-1"))
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	es := EntityServer{
		EntityID:         e.ID,
		ServerID:         "server-1",
		ChannelWhitelist: NewSet("chan-a", "chan-b"),
		WatchChannels:    NewSet("chan-a"),
		Triggers:         []string{"!ask"},
	}
	if _, err := r.UpsertEntityServer(ctx, es); err != nil {
		t.Fatalf("UpsertEntityServer: %v", err)
	}

	got, err := r.GetEntityServer(ctx, e.ID, "server-1")
	if err != nil {
		t.Fatalf("GetEntityServer: %v", err)
	}
	if !got.ChannelWhitelist.Has("chan-a") || !got.WatchChannels.Has("chan-a") {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if len(got.Triggers) != 1 || got.Triggers[0] != "!ask" {
		t.Fatalf("expected triggers to round-trip, got %v", got.Triggers)
	}

	// Update path: narrowing the whitelist should re-normalize watch.
	es.ChannelWhitelist = NewSet("chan-b")
	if _, err := r.UpsertEntityServer(ctx, es); err != nil {
		t.Fatalf("UpsertEntityServer (update): %v", err)
	}
	got, err = r.GetEntityServer(ctx, e.ID, "server-1")
	if err != nil {
		t.Fatalf("GetEntityServer: %v", err)
	}
	if got.WatchChannels.Has("chan-a") {
		t.Fatalf("expected watch to be clipped to the narrowed whitelist, got %v", got.WatchChannels.Slice())
	}
}

func TestPropagateTemplate(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	e, err := r.CreateEntity(ctx, testEntity("owner-1"))
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	tmpl, err := r.CreateServerTemplate(ctx, ServerTemplate{
		ServerID: "server-1",
		Name:     "Default",
		Channels: NewSet("chan-a"),
	})
	if err != nil {
		t.Fatalf("CreateServerTemplate: %v", err)
	}

	es := EntityServer{EntityID: e.ID, ServerID: "server-1"}
	BindTemplate(&es, *tmpl)
	if _, err := r.UpsertEntityServer(ctx, es); err != nil {
		t.Fatalf("UpsertEntityServer: %v", err)
	}

	tmpl.Channels = NewSet("chan-a", "chan-z")
	if err := r.PropagateTemplate(ctx, *tmpl); err != nil {
		t.Fatalf("PropagateTemplate: %v", err)
	}

	got, err := r.GetEntityServer(ctx, e.ID, "server-1")
	if err != nil {
		t.Fatalf("GetEntityServer: %v", err)
	}
	if !got.ChannelWhitelist.Has("chan-z") {
		t.Fatalf("expected propagated template change, got %v", got.ChannelWhitelist.Slice())
	}
}

func TestRemoveEntityServerNotFound(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.RemoveEntityServer(context.Background(), "missing", "server-1"); err == nil {
		t.Fatal("expected error removing a nonexistent entity_server row")
	}
}
