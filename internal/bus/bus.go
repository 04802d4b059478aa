// Package bus is the Message Bus: a bounded FIFO of queued messages per
// Entity, held entirely in memory. The Bus exclusively owns queue contents
// (nothing durable is written here); a process restart loses every message,
// which is acceptable because the AI client can fall back to live channel
// history.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rakunlabs/arachne/internal/crypto"
)

const (
	sentinelEncrypted    = "[encrypted]"
	sentinelKeyMismatch  = "[encrypted — key mismatch]"
)

// QueuedMessage is one routed chat event held for an Entity to read. It
// lives only in memory; it is created on enqueue, possibly mutated in place
// by retroactive encryption, and destroyed by the TTL sweep.
type QueuedMessage struct {
	MessageID    string
	ChannelID    string
	ChannelName  string
	ServerID     string
	AuthorID     string
	AuthorName   string
	Content      string
	Encrypted    bool
	Addressed    bool
	Triggered    bool
	Watch        bool
	ArrivedAt    time.Time
	ExpiresAt    time.Time
}

// Config controls queue behavior.
type Config struct {
	TTL           time.Duration
	Cap           int
	SweepInterval time.Duration
}

// queue is one Entity's bounded FIFO, guarded by its own mutex so one
// Entity's reads never block another's enqueues (spec.md §4.3).
type queue struct {
	mu       sync.Mutex
	messages []QueuedMessage
}

// Bus holds one queue per Entity id.
type Bus struct {
	cfg Config

	mu     sync.RWMutex
	queues map[string]*queue

	stop chan struct{}
	done chan struct{}
}

// New constructs a Bus and starts its background eviction sweep. Call
// Stop to halt the sweep goroutine on shutdown.
func New(cfg Config) *Bus {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.TTL > time.Hour {
		cfg.TTL = time.Hour
	}
	if cfg.Cap <= 0 {
		cfg.Cap = 500
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	b := &Bus{
		cfg:    cfg,
		queues: make(map[string]*queue),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go b.sweepLoop()

	return b
}

// sweepLoop mirrors the teacher's sweepThoughtSigCache background-ticker
// pattern (internal/server/server.go), generalized from a signature cache
// to per-Entity message queues.
func (b *Bus) sweepLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.sweep()
		}
	}
}

// Stop halts the eviction sweep goroutine and waits for it to exit.
func (b *Bus) Stop() {
	close(b.stop)
	<-b.done
}

// sweep drops expired messages from every queue and removes queues left
// empty. It replaces each queue's slice atomically under that queue's own
// lock, so concurrent readers never observe a torn state (wait-free reads).
func (b *Bus) sweep() {
	now := time.Now()

	b.mu.Lock()
	entityIDs := make([]string, 0, len(b.queues))
	for id := range b.queues {
		entityIDs = append(entityIDs, id)
	}
	b.mu.Unlock()

	for _, id := range entityIDs {
		b.mu.RLock()
		q, ok := b.queues[id]
		b.mu.RUnlock()
		if !ok {
			continue
		}

		q.mu.Lock()
		survivors := q.messages[:0:0]
		for _, m := range q.messages {
			if now.Before(m.ExpiresAt) {
				survivors = append(survivors, m)
			}
		}
		q.messages = survivors
		empty := len(q.messages) == 0
		q.mu.Unlock()

		if empty {
			b.mu.Lock()
			if q2, ok := b.queues[id]; ok && len(q2.messages) == 0 {
				delete(b.queues, id)
			}
			b.mu.Unlock()
		}
	}
}

func (b *Bus) queueFor(entityID string) *queue {
	b.mu.RLock()
	q, ok := b.queues[entityID]
	b.mu.RUnlock()
	if ok {
		return q
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[entityID]; ok {
		return q
	}
	q = &queue{}
	b.queues[entityID] = q
	return q
}

// Enqueue appends a message to an Entity's queue. If key is non-nil, the
// content is encrypted in place before storage. The Bus never blocks the
// router and never back-pressures: exceeding the cap drops the oldest
// surviving messages with a log line, preserving FIFO order of the rest.
func (b *Bus) Enqueue(ctx context.Context, entityID string, msg QueuedMessage, key []byte) {
	_ = ctx

	if msg.ArrivedAt.IsZero() {
		msg.ArrivedAt = time.Now()
	}
	if msg.ExpiresAt.IsZero() {
		msg.ExpiresAt = msg.ArrivedAt.Add(b.cfg.TTL)
	}

	if key != nil {
		ciphertext, err := crypto.Encrypt(msg.Content, key)
		if err != nil {
			slog.Error("bus: encrypt message on enqueue", "entity_id", entityID, "error", err)
		} else {
			msg.Content = ciphertext
			msg.Encrypted = true
		}
	}

	q := b.queueFor(entityID)

	q.mu.Lock()
	defer q.mu.Unlock()

	q.messages = append(q.messages, msg)
	if over := len(q.messages) - b.cfg.Cap; over > 0 {
		slog.Warn("bus: queue cap exceeded, dropping oldest messages",
			"entity_id", entityID, "dropped", over, "cap", b.cfg.Cap)
		q.messages = q.messages[over:]
	}
}

// ReadOptions narrows a Read call.
type ReadOptions struct {
	ChannelID     string
	Limit         int
	Key           []byte
	TriggeredOnly bool
}

// Read returns up to Limit messages for entityID, most-recent-arrival-last,
// after filtering by TTL, channel, and trigger. Reading never removes
// messages — only the TTL sweep does. Encrypted content is decrypted if a
// key is supplied; otherwise it is replaced with a sentinel, never
// dropped. Retroactive encryption (spec.md §4.3) runs first when a key is
// present, upgrading any plaintext entries still sitting in the queue.
func (b *Bus) Read(entityID string, opts ReadOptions) []QueuedMessage {
	b.mu.RLock()
	q, ok := b.queues[entityID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	if opts.Key != nil {
		b.retroactivelyEncrypt(q, opts.Key)
	}

	now := time.Now()

	q.mu.Lock()
	snapshot := make([]QueuedMessage, len(q.messages))
	copy(snapshot, q.messages)
	q.mu.Unlock()

	filtered := make([]QueuedMessage, 0, len(snapshot))
	for _, m := range snapshot {
		if !now.Before(m.ExpiresAt) {
			continue
		}
		if opts.ChannelID != "" && m.ChannelID != opts.ChannelID {
			continue
		}
		if opts.TriggeredOnly && !m.Triggered {
			continue
		}
		filtered = append(filtered, m)
	}

	limit := opts.Limit
	if limit <= 0 || limit > len(filtered) {
		limit = len(filtered)
	}
	tail := filtered[len(filtered)-limit:]

	out := make([]QueuedMessage, len(tail))
	for i, m := range tail {
		out[i] = decodeForReader(m, opts.Key)
	}

	return out
}

// decodeForReader produces the reader-facing view of a message: decrypted
// content on success, or one of the two sentinel strings, without mutating
// the stored copy.
func decodeForReader(m QueuedMessage, key []byte) QueuedMessage {
	if !m.Encrypted {
		return m
	}
	if key == nil {
		m.Content = sentinelEncrypted
		return m
	}

	plaintext, err := crypto.Decrypt(m.Content, key)
	if err != nil {
		slog.Warn("bus: decrypt message failed, key mismatch", "channel_id", m.ChannelID)
		m.Content = sentinelKeyMismatch
		return m
	}
	m.Content = plaintext
	return m
}

// retroactivelyEncrypt encrypts in place any plaintext entries still in the
// queue, using a newly-available key. Idempotent: already-encrypted entries
// are left untouched.
func (b *Bus) retroactivelyEncrypt(q *queue, key []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.messages {
		if m.Encrypted {
			continue
		}
		ciphertext, err := crypto.Encrypt(m.Content, key)
		if err != nil {
			slog.Error("bus: retroactive encryption failed", "channel_id", m.ChannelID, "error", err)
			continue
		}
		q.messages[i].Content = ciphertext
		q.messages[i].Encrypted = true
	}
}

// Purge drops an Entity's entire queue, used on hard delete.
func (b *Bus) Purge(entityID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, entityID)
}

// QueueStats reports one Entity queue's size and the age of its oldest
// message, for the GET /health endpoint (spec.md §6).
type QueueStats struct {
	EntityID  string
	Size      int
	OldestAge time.Duration
}

// Stats snapshots every queue's size and oldest-message age.
func (b *Bus) Stats() []QueueStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	now := time.Now()
	out := make([]QueueStats, 0, len(b.queues))
	for entityID, q := range b.queues {
		q.mu.Lock()
		stats := QueueStats{EntityID: entityID, Size: len(q.messages)}
		if len(q.messages) > 0 {
			stats.OldestAge = now.Sub(q.messages[0].ArrivedAt)
		}
		q.mu.Unlock()
		out = append(out, stats)
	}
	return out
}
