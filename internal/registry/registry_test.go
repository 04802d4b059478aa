package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rakunlabs/arachne/internal/config"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.StoreSQLite{
		Datasource: filepath.Join(dir, "test.db"),
	}

	r, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(r.Close)

	return r
}

func testEntity(ownerID string) Entity {
	return Entity{
		Name:             "Test Entity",
		Platform:         PlatformClaude,
		OwnerID:          ownerID,
		OwnerDisplayName: "Owner",
		APIKeyHash:       "hash",
		KeySalt:          []byte("0123456789abcdef"),
	}
}
