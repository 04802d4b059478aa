package registry

import (
	"context"
	"testing"
)

func TestEnsureColumnsIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	// New already ran ensureColumns once; running it again against the
	// same connection must be a no-op, not an error (ADD COLUMN on an
	// existing column fails loudly if the guard is broken).
	if err := ensureColumns(ctx, r.db, DefaultTablePrefix); err != nil {
		t.Fatalf("ensureColumns (second run): %v", err)
	}

	exists, err := columnExists(ctx, r.db, DefaultTablePrefix+"entities", "accent_color")
	if err != nil {
		t.Fatalf("columnExists: %v", err)
	}
	if !exists {
		t.Fatal("expected accent_color to have been added by the additive migration pass")
	}
}

func TestColumnExistsUnknownColumn(t *testing.T) {
	r := newTestRegistry(t)

	exists, err := columnExists(context.Background(), r.db, DefaultTablePrefix+"entities", "nonexistent")
	if err != nil {
		t.Fatalf("columnExists: %v", err)
	}
	if exists {
		t.Fatal("expected nonexistent column to report false")
	}
}
