package webhook

import (
	"testing"
	"time"
)

func TestCacheBustAppendsQueryParam(t *testing.T) {
	a := cacheBust("https://cdn.example.com/avatar.png")
	b := cacheBust("https://cdn.example.com/avatar.png")
	if a == b {
		t.Fatal("expected successive cache-bust calls to differ")
	}
	if a[:len("https://cdn.example.com/avatar.png?v=")] != "https://cdn.example.com/avatar.png?v=" {
		t.Fatalf("expected a ?v= query param, got %q", a)
	}
}

func TestCacheBustPreservesExistingQuery(t *testing.T) {
	got := cacheBust("https://cdn.example.com/avatar.png?size=256")
	if got[:len("https://cdn.example.com/avatar.png?size=256&v=")] != "https://cdn.example.com/avatar.png?size=256&v=" {
		t.Fatalf("expected existing query to be preserved with &v=, got %q", got)
	}
}

func TestCacheBustEmptyURL(t *testing.T) {
	if cacheBust("") != "" {
		t.Fatal("expected empty avatar URL to remain empty")
	}
}

func TestAttributionRoundTrip(t *testing.T) {
	p := &Proxy{attrs: make(map[string]attribution)}

	p.AttributeMessage("msg-1", "entity-1")

	id, ok := p.AttributionFor("msg-1")
	if !ok || id != "entity-1" {
		t.Fatalf("expected attribution round-trip, got %q, %v", id, ok)
	}

	if _, ok := p.AttributionFor("missing"); ok {
		t.Fatal("expected no attribution for an unknown message id")
	}
}

func TestAttributionExpires(t *testing.T) {
	p := &Proxy{attrs: make(map[string]attribution)}
	p.attrs["msg-1"] = attribution{entityID: "entity-1", expiresAt: time.Now().Add(-time.Minute)}

	if _, ok := p.AttributionFor("msg-1"); ok {
		t.Fatal("expected an expired attribution to be treated as absent")
	}
}

func TestSweepAttributionsRemovesExpired(t *testing.T) {
	p := &Proxy{attrs: make(map[string]attribution)}
	p.attrs["stale"] = attribution{entityID: "e1", expiresAt: time.Now().Add(-time.Minute)}
	p.attrs["fresh"] = attribution{entityID: "e2", expiresAt: time.Now().Add(time.Hour)}

	p.sweepAttributions()

	if _, ok := p.attrs["stale"]; ok {
		t.Fatal("expected stale attribution to be swept")
	}
	if _, ok := p.attrs["fresh"]; !ok {
		t.Fatal("expected fresh attribution to survive the sweep")
	}
}
