package bus

import (
	"context"
	"testing"
	"time"

	"github.com/rakunlabs/arachne/internal/crypto"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := crypto.DeriveEntityKey("api-key", []byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("DeriveEntityKey: %v", err)
	}
	return key
}

func newTestBus(cfg Config) *Bus {
	b := New(cfg)
	b.Stop() // tests drive sweep() directly, no need for the background ticker
	return b
}

func TestEnqueueAndReadPlaintext(t *testing.T) {
	b := newTestBus(Config{TTL: time.Hour, Cap: 10})

	b.Enqueue(context.Background(), "entity-1", QueuedMessage{
		MessageID: "m1",
		ChannelID: "chan-1",
		Content:   "hello",
	}, nil)

	msgs := b.Read("entity-1", ReadOptions{Limit: 10})
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestEnqueueWithKeyEncrypts(t *testing.T) {
	b := newTestBus(Config{TTL: time.Hour, Cap: 10})
	key := testKey(t)

	b.Enqueue(context.Background(), "entity-1", QueuedMessage{MessageID: "m1", Content: "secret"}, key)

	// Reading without a key returns the sentinel, never plaintext.
	msgs := b.Read("entity-1", ReadOptions{Limit: 10})
	if msgs[0].Content != sentinelEncrypted {
		t.Fatalf("expected encrypted sentinel, got %q", msgs[0].Content)
	}

	// Reading with the correct key decrypts.
	msgs = b.Read("entity-1", ReadOptions{Limit: 10, Key: key})
	if msgs[0].Content != "secret" {
		t.Fatalf("expected decrypted content, got %q", msgs[0].Content)
	}
}

func TestReadWrongKeyYieldsMismatchSentinelNotDrop(t *testing.T) {
	b := newTestBus(Config{TTL: time.Hour, Cap: 10})
	key := testKey(t)
	wrongKey, err := crypto.DeriveEntityKey("other-key", []byte("fedcba9876543210"))
	if err != nil {
		t.Fatalf("DeriveEntityKey: %v", err)
	}

	b.Enqueue(context.Background(), "entity-1", QueuedMessage{MessageID: "m1", Content: "secret"}, key)

	msgs := b.Read("entity-1", ReadOptions{Limit: 10, Key: wrongKey})
	if len(msgs) != 1 {
		t.Fatalf("expected the message to survive a failed decrypt, got %d messages", len(msgs))
	}
	if msgs[0].Content != sentinelKeyMismatch {
		t.Fatalf("expected key-mismatch sentinel, got %q", msgs[0].Content)
	}
}

func TestRetroactiveEncryptionIsIdempotent(t *testing.T) {
	b := newTestBus(Config{TTL: time.Hour, Cap: 10})
	key := testKey(t)

	b.Enqueue(context.Background(), "entity-1", QueuedMessage{MessageID: "m1", Content: "plain"}, nil)

	first := b.Read("entity-1", ReadOptions{Limit: 10, Key: key})
	if first[0].Content != "plain" {
		t.Fatalf("expected first read to decrypt retroactively-encrypted content back to plaintext, got %q", first[0].Content)
	}

	second := b.Read("entity-1", ReadOptions{Limit: 10, Key: key})
	if second[0].Content != "plain" {
		t.Fatalf("expected idempotent retroactive encryption, got %q", second[0].Content)
	}
}

func TestCapEvictionPreservesFIFO(t *testing.T) {
	b := newTestBus(Config{TTL: time.Hour, Cap: 3})

	for i := 0; i < 5; i++ {
		b.Enqueue(context.Background(), "entity-1", QueuedMessage{
			MessageID: string(rune('a' + i)),
			Content:   string(rune('a' + i)),
		}, nil)
	}

	msgs := b.Read("entity-1", ReadOptions{Limit: 10})
	if len(msgs) != 3 {
		t.Fatalf("expected cap to bound the queue at 3, got %d", len(msgs))
	}
	if msgs[0].Content != "c" || msgs[2].Content != "e" {
		t.Fatalf("expected the oldest messages dropped in FIFO order, got %+v", msgs)
	}
}

func TestReadFiltersByChannelAndTrigger(t *testing.T) {
	b := newTestBus(Config{TTL: time.Hour, Cap: 10})

	b.Enqueue(context.Background(), "entity-1", QueuedMessage{ChannelID: "a", Triggered: true, Content: "1"}, nil)
	b.Enqueue(context.Background(), "entity-1", QueuedMessage{ChannelID: "b", Triggered: false, Content: "2"}, nil)

	byChannel := b.Read("entity-1", ReadOptions{ChannelID: "a", Limit: 10})
	if len(byChannel) != 1 || byChannel[0].Content != "1" {
		t.Fatalf("expected channel filter to narrow to one message, got %+v", byChannel)
	}

	triggeredOnly := b.Read("entity-1", ReadOptions{TriggeredOnly: true, Limit: 10})
	if len(triggeredOnly) != 1 || triggeredOnly[0].Content != "1" {
		t.Fatalf("expected triggered-only filter to narrow to one message, got %+v", triggeredOnly)
	}
}

func TestSweepRemovesExpiredAndEmptiesQueue(t *testing.T) {
	b := newTestBus(Config{TTL: time.Millisecond, Cap: 10})

	b.Enqueue(context.Background(), "entity-1", QueuedMessage{Content: "stale"}, nil)
	time.Sleep(5 * time.Millisecond)

	b.sweep()

	b.mu.RLock()
	_, ok := b.queues["entity-1"]
	b.mu.RUnlock()
	if ok {
		t.Fatal("expected the emptied queue to be removed after sweep")
	}
}

func TestPurgeRemovesQueue(t *testing.T) {
	b := newTestBus(Config{TTL: time.Hour, Cap: 10})
	b.Enqueue(context.Background(), "entity-1", QueuedMessage{Content: "x"}, nil)

	b.Purge("entity-1")

	msgs := b.Read("entity-1", ReadOptions{Limit: 10})
	if len(msgs) != 0 {
		t.Fatalf("expected purged queue to read empty, got %+v", msgs)
	}
}

func TestStatsReportsSizeAndOldestAge(t *testing.T) {
	b := newTestBus(Config{TTL: time.Hour, Cap: 10})

	if stats := b.Stats(); len(stats) != 0 {
		t.Fatalf("expected no stats for an empty bus, got %+v", stats)
	}

	old := QueuedMessage{MessageID: "m1", Content: "first"}
	old.ArrivedAt = time.Now().Add(-time.Minute)
	old.ExpiresAt = old.ArrivedAt.Add(time.Hour)
	b.Enqueue(context.Background(), "entity-1", old, nil)
	b.Enqueue(context.Background(), "entity-1", QueuedMessage{MessageID: "m2", Content: "second"}, nil)
	b.Enqueue(context.Background(), "entity-2", QueuedMessage{MessageID: "m3", Content: "third"}, nil)

	byEntity := make(map[string]QueueStats)
	for _, s := range b.Stats() {
		byEntity[s.EntityID] = s
	}

	if len(byEntity) != 2 {
		t.Fatalf("expected stats for 2 entities, got %+v", byEntity)
	}

	entity1 := byEntity["entity-1"]
	if entity1.Size != 2 {
		t.Fatalf("expected entity-1 size 2, got %d", entity1.Size)
	}
	if entity1.OldestAge < 50*time.Second {
		t.Fatalf("expected entity-1 oldest age to reflect the first message's arrival, got %v", entity1.OldestAge)
	}

	entity2 := byEntity["entity-2"]
	if entity2.Size != 1 {
		t.Fatalf("expected entity-2 size 1, got %d", entity2.Size)
	}
	if entity2.OldestAge < 0 || entity2.OldestAge > time.Second {
		t.Fatalf("expected entity-2 oldest age near zero, got %v", entity2.OldestAge)
	}
}
