// Package keystore holds derived per-Entity symmetric keys in volatile
// memory. Nothing here is ever persisted; a process restart clears every
// slot and requires re-derivation from the next API-key-authenticated
// request.
package keystore

import (
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rakunlabs/arachne/internal/crypto"
)

// entrySlot holds one Entity's derived key plus a cached bcrypt
// verification, so repeated MCP tool calls within the same API-key session
// don't re-run bcrypt on every request.
type entrySlot struct {
	key []byte

	// verifiedHash and verifiedKeySum pin a cache hit to the exact
	// (storedHash, rawKey) pair that produced it: the stored hash alone is
	// constant per Entity, so keying on it without also binding the
	// presented key would let any bearer value authenticate once a slot is
	// primed. verifiedKeySum is sha256(rawKey); comparing its digest rather
	// than the raw key avoids holding a second copy of the API key.
	verifiedHash   string
	verifiedKeySum [sha256.Size]byte
	verifiedAt     time.Time
}

// Store is the in-memory Entity id -> derived key map. Safe for concurrent
// use; callers obtain the key reference only for the duration of an enqueue
// or decrypt and must not retain it (spec.md §5 shared-resource discipline).
type Store struct {
	mu      sync.RWMutex
	entries map[string]entrySlot
}

func New() *Store {
	return &Store{entries: make(map[string]entrySlot)}
}

// Lookup returns the cached key for an Entity, if one is present (either
// from creation/regeneration or a prior API-key-authenticated request in
// this process).
func (s *Store) Lookup(entityID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.entries[entityID]
	if !ok {
		return nil, false
	}
	return slot.key, true
}

// Put stores a derived key directly, used on Entity creation and key
// regeneration where the raw key and salt are both in hand.
func (s *Store) Put(entityID string, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entityID] = entrySlot{key: key}
}

// AuthenticateAPIKey verifies rawKey against storedHash. On success it
// derives and caches the Message Bus key for entityID (spec.md §4.4, §4.7
// step 2) and returns it. A cached verification from a prior call in this
// process with the same storedHash and the same rawKey skips the bcrypt
// comparison entirely.
func (s *Store) AuthenticateAPIKey(entityID, rawKey, storedHash string, salt []byte) ([]byte, error) {
	keySum := sha256.Sum256([]byte(rawKey))

	s.mu.RLock()
	slot, ok := s.entries[entityID]
	s.mu.RUnlock()
	if ok && slot.key != nil && slot.verifiedHash == storedHash &&
		subtle.ConstantTimeCompare(slot.verifiedKeySum[:], keySum[:]) == 1 {
		return slot.key, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(rawKey)); err != nil {
		return nil, err
	}

	key, err := crypto.DeriveEntityKey(rawKey, salt)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.entries[entityID] = entrySlot{key: key, verifiedHash: storedHash, verifiedKeySum: keySum, verifiedAt: time.Now()}
	s.mu.Unlock()

	return key, nil
}

// Clear purges an Entity's slot on deactivation, deletion, or key
// regeneration invalidation (spec.md §3 "Delete semantics").
func (s *Store) Clear(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, entityID)
}
