package keystore

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/rakunlabs/arachne/internal/crypto"
)

func TestLookupMiss(t *testing.T) {
	s := New()
	if _, ok := s.Lookup("missing"); ok {
		t.Fatal("expected miss for unknown entity")
	}
}

func TestPutThenLookup(t *testing.T) {
	s := New()
	s.Put("entity-1", []byte("0123456789abcdef0123456789abcdef"))

	key, ok := s.Lookup("entity-1")
	if !ok || len(key) == 0 {
		t.Fatal("expected stored key to be found")
	}
}

func TestAuthenticateAPIKeySuccess(t *testing.T) {
	s := New()
	salt := []byte("pepper-pepper123")
	rawKey := "ent_abcdef"

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}

	key, err := s.AuthenticateAPIKey("entity-1", rawKey, string(hash), salt)
	if err != nil {
		t.Fatalf("AuthenticateAPIKey: %v", err)
	}

	want, err := crypto.DeriveEntityKey(rawKey, salt)
	if err != nil {
		t.Fatalf("DeriveEntityKey: %v", err)
	}
	if string(key) != string(want) {
		t.Fatal("derived key mismatch")
	}

	cached, ok := s.Lookup("entity-1")
	if !ok || string(cached) != string(want) {
		t.Fatal("expected successful authentication to cache the key")
	}
}

func TestAuthenticateAPIKeyWrongKeyFails(t *testing.T) {
	s := New()
	salt := []byte("pepper-pepper123")

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-key"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}

	if _, err := s.AuthenticateAPIKey("entity-1", "wrong-key", string(hash), salt); err == nil {
		t.Fatal("expected authentication failure for wrong key")
	}
}

func TestAuthenticateAPIKeySkipsBcryptOnCacheHit(t *testing.T) {
	s := New()
	salt := []byte("pepper-pepper123")
	rawKey := "ent_abcdef"

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}

	if _, err := s.AuthenticateAPIKey("entity-1", rawKey, string(hash), salt); err != nil {
		t.Fatalf("first AuthenticateAPIKey: %v", err)
	}

	// A second call with the same raw key and stored hash hits the cache
	// and skips bcrypt, but must still return the same derived key.
	key, err := s.AuthenticateAPIKey("entity-1", rawKey, string(hash), salt)
	if err != nil {
		t.Fatalf("second AuthenticateAPIKey (cache hit): %v", err)
	}
	if len(key) == 0 {
		t.Fatal("expected cached key to be returned")
	}
}

func TestAuthenticateAPIKeyCacheHitRequiresSamePresentedKey(t *testing.T) {
	s := New()
	salt := []byte("pepper-pepper123")
	rawKey := "ent_abcdef"

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}

	if _, err := s.AuthenticateAPIKey("entity-1", rawKey, string(hash), salt); err != nil {
		t.Fatalf("first AuthenticateAPIKey: %v", err)
	}

	// A primed slot (same entity, same stored hash) must not authenticate a
	// different presented key: the stored hash alone is constant per
	// Entity, so the cache must be bound to the raw key too.
	if _, err := s.AuthenticateAPIKey("entity-1", "wrong-key", string(hash), salt); err == nil {
		t.Fatal("expected a different presented key to fail despite a warm cache slot")
	}
}

func TestClearRemovesSlot(t *testing.T) {
	s := New()
	s.Put("entity-1", []byte("key"))
	s.Clear("entity-1")

	if _, ok := s.Lookup("entity-1"); ok {
		t.Fatal("expected slot to be cleared")
	}
}
