package mcpserver

import (
	"testing"

	"github.com/rakunlabs/arachne/internal/registry"
)

func TestComputeCapabilityUnionsBlockedChannels(t *testing.T) {
	rows := []registry.EntityServer{
		{ServerID: "s1", ChannelWhitelist: registry.NewSet("c1", "c2"), BlockedChannels: registry.NewSet("c1")},
		{ServerID: "s2", ChannelWhitelist: registry.NewSet("c3"), BlockedChannels: registry.NewSet("c3")},
	}
	cap := computeCapability(rows)

	if !cap.blocksChannel("c1") || !cap.blocksChannel("c3") {
		t.Fatal("expected c1 and c3 to be in the blocked union")
	}
	if cap.blocksChannel("c2") {
		t.Fatal("c2 was never blocked by any row")
	}

	// A blocked channel is still whitelisted: routing stays read-only, not
	// cut off entirely (spec.md §4.2's derived-state table).
	if !cap.allowsChannel("c1") {
		t.Fatal("blocked channel must remain whitelisted for read-only routing")
	}
}

func TestCapabilityBlocksChannelEmptyID(t *testing.T) {
	cap := computeCapability(nil)
	if cap.blocksChannel("") {
		t.Fatal("empty channel id must never be reported as blocked")
	}
}
