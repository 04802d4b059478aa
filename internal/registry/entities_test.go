package registry

import (
	"context"
	"errors"
	"testing"
)

func TestCreateAndGetEntity(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.CreateEntity(ctx, testEntity("owner-1"))
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated ID")
	}
	if !created.Active {
		t.Fatal("expected new entity to be active")
	}

	got, err := r.GetEntity(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.Name != "Test Entity" || got.OwnerID != "owner-1" {
		t.Fatalf("unexpected entity: %+v", got)
	}
	if len(got.KeySalt) != len(created.KeySalt) {
		t.Fatalf("salt round-trip mismatch: got %d bytes, want %d", len(got.KeySalt), len(created.KeySalt))
	}
}

func TestCreateEntityDefaultsOwnerNotifyOptInFalse(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	e := testEntity("owner-1")
	created, err := r.CreateEntity(ctx, e)
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if created.OwnerNotifyOptIn {
		t.Fatal("expected owner notification opt-in to default to false")
	}

	got, err := r.GetEntity(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.OwnerNotifyOptIn {
		t.Fatal("expected stored entity to round-trip the opt-in default")
	}

	e.OwnerNotifyOptIn = true
	optedIn, err := r.CreateEntity(ctx, e)
	if err != nil {
		t.Fatalf("CreateEntity (opted in): %v", err)
	}
	gotOptedIn, err := r.GetEntity(ctx, optedIn.ID)
	if err != nil {
		t.Fatalf("GetEntity (opted in): %v", err)
	}
	if !gotOptedIn.OwnerNotifyOptIn {
		t.Fatal("expected opt-in to round-trip as true")
	}
}

func TestGetEntityNotFound(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.GetEntity(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEntitiesByOwnerExcludesInactive(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	e1, err := r.CreateEntity(ctx, testEntity("owner-2"))
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	e2 := testEntity("owner-2")
	e2.Name = "Second"
	if _, err := r.CreateEntity(ctx, e2); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	if err := r.Deactivate(ctx, e1.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	owned, err := r.EntitiesByOwner(ctx, "owner-2")
	if err != nil {
		t.Fatalf("EntitiesByOwner: %v", err)
	}
	if len(owned) != 1 || owned[0].Name != "Second" {
		t.Fatalf("expected only the active entity, got %+v", owned)
	}
}

func TestRegenerateAPIKey(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	e, err := r.CreateEntity(ctx, testEntity("owner-3"))
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	newSalt := []byte("fedcba9876543210")
	if err := r.RegenerateAPIKey(ctx, e.ID, "new-hash", newSalt); err != nil {
		t.Fatalf("RegenerateAPIKey: %v", err)
	}

	got, err := r.GetEntity(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.APIKeyHash != "new-hash" || string(got.KeySalt) != string(newSalt) {
		t.Fatalf("key was not regenerated: %+v", got)
	}
}

func TestDeleteEntityCascades(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	e, err := r.CreateEntity(ctx, testEntity("owner-4"))
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if _, err := r.UpsertEntityServer(ctx, EntityServer{EntityID: e.ID, ServerID: "server-1"}); err != nil {
		t.Fatalf("UpsertEntityServer: %v", err)
	}

	if err := r.DeleteEntity(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}

	if _, err := r.GetEntity(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected entity gone, got %v", err)
	}
	if _, err := r.GetEntityServer(ctx, e.ID, "server-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected entity_server cascade-deleted, got %v", err)
	}
}

func TestEntitiesForChannelWhitelistFilter(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	allChannels, err := r.CreateEntity(ctx, testEntity("owner-5"))
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if _, err := r.UpsertEntityServer(ctx, EntityServer{EntityID: allChannels.ID, ServerID: "server-9"}); err != nil {
		t.Fatalf("UpsertEntityServer: %v", err)
	}

	scoped := testEntity("owner-5")
	scoped.Name = "Scoped"
	scopedEntity, err := r.CreateEntity(ctx, scoped)
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if _, err := r.UpsertEntityServer(ctx, EntityServer{
		EntityID:         scopedEntity.ID,
		ServerID:         "server-9",
		ChannelWhitelist: NewSet("chan-a"),
	}); err != nil {
		t.Fatalf("UpsertEntityServer: %v", err)
	}

	rows, err := r.EntitiesForChannel(ctx, "server-9", "chan-b")
	if err != nil {
		t.Fatalf("EntitiesForChannel: %v", err)
	}
	if len(rows) != 1 || rows[0].Entity.ID != allChannels.ID {
		t.Fatalf("expected only the all-channels entity for chan-b, got %+v", rows)
	}

	rows, err = r.EntitiesForChannel(ctx, "server-9", "chan-a")
	if err != nil {
		t.Fatalf("EntitiesForChannel: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected both entities for chan-a, got %+v", rows)
	}
}
