package mcpserver

import (
	"errors"
	"testing"

	"github.com/rakunlabs/arachne/internal/mcptools"
	"github.com/rakunlabs/arachne/internal/registry"
)

func TestGatedHandlerRejectsIdentityPostToBlockedChannel(t *testing.T) {
	cap := computeCapability([]registry.EntityServer{
		{ServerID: "s1", ChannelWhitelist: registry.NewSet("c1"), BlockedChannels: registry.NewSet("c1")},
	})

	called := false
	spec := &mcptools.ToolSpec{
		Name: "send_message",
		Handler: func(tc *mcptools.Context, args map[string]any) (any, error) {
			called = true
			return "ok", nil
		},
	}

	handler := gatedHandler(spec, cap, &mcptools.Context{})
	_, err := handler(map[string]any{"channel_id": "c1", "content": "hi"})
	if err == nil {
		t.Fatal("expected send_message targeting a blocked channel to be rejected")
	}
	if !errors.Is(err, ErrChannelBlocked) {
		t.Fatalf("expected ErrChannelBlocked, got %v", err)
	}
	if called {
		t.Fatal("tool body must not run once the channel is found blocked")
	}
}

func TestGatedHandlerAllowsIdentityPostToWhitelistedUnblockedChannel(t *testing.T) {
	cap := computeCapability([]registry.EntityServer{
		{ServerID: "s1", ChannelWhitelist: registry.NewSet("c1", "c2"), BlockedChannels: registry.NewSet("c1")},
	})

	spec := &mcptools.ToolSpec{
		Name: "send_message",
		Handler: func(tc *mcptools.Context, args map[string]any) (any, error) {
			return "ok", nil
		},
	}

	handler := gatedHandler(spec, cap, &mcptools.Context{})
	if _, err := handler(map[string]any{"channel_id": "c2", "content": "hi"}); err != nil {
		t.Fatalf("expected unblocked whitelisted channel to be allowed, got %v", err)
	}
}

func TestGatedHandlerAllowsNonIdentityToolOnBlockedChannel(t *testing.T) {
	cap := computeCapability([]registry.EntityServer{
		{ServerID: "s1", ChannelWhitelist: registry.NewSet("c1"), BlockedChannels: registry.NewSet("c1")},
	})

	spec := &mcptools.ToolSpec{
		Name: "delete_message",
		Handler: func(tc *mcptools.Context, args map[string]any) (any, error) {
			return "ok", nil
		},
	}

	handler := gatedHandler(spec, cap, &mcptools.Context{})
	if _, err := handler(map[string]any{"channel_id": "c1", "message_id": "m1"}); err != nil {
		t.Fatalf("non-identity-post tools are unaffected by BlockedChannels, got %v", err)
	}
}
