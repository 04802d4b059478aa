// Package router runs the inbound fan-out pipeline: every platform chat
// event is matched against the Registry's candidate Entities, tagged, and
// pushed to the Message Bus. It holds only transient references — the
// Registry, Bus, and Key Store each own their own state (spec.md §3
// "Ownership model").
package router

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rakunlabs/arachne/internal/bus"
	"github.com/rakunlabs/arachne/internal/keystore"
	"github.com/rakunlabs/arachne/internal/registry"
)

// InboundEvent is one chat message as delivered by the platform gateway,
// already stripped of transport-specific detail.
type InboundEvent struct {
	MessageID   string
	ServerID    string
	ChannelID   string
	ChannelName string
	AuthorID    string
	AuthorName  string
	Content     string
	MentionedRoleIDs []string

	// IsSelf marks events the bridge's own bot user produced.
	IsSelf bool
	// WebhookOwnerEntityID is set when the Webhook Proxy's attribution map
	// recognizes this message as one Arachne itself posted on an Entity's
	// behalf — such events are never re-routed.
	WebhookOwnerEntityID string
}

// OwnerNotifier sends a direct message to an Entity owner on the platform.
// Implemented by the discord gateway (internal/discord); kept as an
// interface here so the Router doesn't import the transport layer.
type OwnerNotifier interface {
	NotifyOwner(ctx context.Context, ownerID string, event InboundEvent, entity registry.Entity, reason string) error
}

// Router wires the Registry, Bus, and Key Store together for one inbound
// event pipeline run (spec.md §4.5).
type Router struct {
	registry *registry.Registry
	bus      *bus.Bus
	keystore *keystore.Store
	notifier OwnerNotifier
}

func New(reg *registry.Registry, b *bus.Bus, ks *keystore.Store, notifier OwnerNotifier) *Router {
	return &Router{registry: reg, bus: b, keystore: ks, notifier: notifier}
}

// SetNotifier wires the OwnerNotifier after construction, for callers (like
// the discord gateway) that need a *Router reference to build their own
// notifier implementation — breaking the otherwise-circular New() dependency.
func (r *Router) SetNotifier(n OwnerNotifier) {
	r.notifier = n
}

// Route runs the full pipeline for a single inbound event. It never blocks
// on owner-DM side effects; those are dispatched to background goroutines.
func (r *Router) Route(ctx context.Context, event InboundEvent) {
	if event.IsSelf || event.WebhookOwnerEntityID != "" {
		return
	}

	candidates, err := r.registry.EntitiesForChannel(ctx, event.ServerID, event.ChannelID)
	if err != nil {
		slog.Error("router: entities_for_channel", "server_id", event.ServerID, "channel_id", event.ChannelID, "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	roleMap, err := r.registry.RoleEntityMap(ctx, event.ServerID)
	if err != nil {
		slog.Error("router: role_entity_map", "server_id", event.ServerID, "error", err)
		roleMap = nil
	}

	for _, candidate := range candidates {
		r.routeToEntity(ctx, event, candidate, roleMap)
	}
}

func (r *Router) routeToEntity(ctx context.Context, event InboundEvent, candidate registry.EntityChannelRow, roleMap map[string]string) {
	// Defensive recheck: the hot-path query already enforces the
	// whitelist, but a blocked channel still routes read-only (it is only
	// excluded from auto-response tagging, not from the bus entirely).
	if !candidate.ChannelWhitelist.Empty() && !candidate.ChannelWhitelist.Has(event.ChannelID) {
		return
	}

	addressed := addressedTo(candidate.RoleID, event.MentionedRoleIDs, roleMap, candidate.Entity.ID)
	triggered := triggeredBy(candidate.Triggers, event.Content)
	watch := candidate.WatchChannels.Has(event.ChannelID) && !candidate.BlockedChannels.Has(event.ChannelID)

	key, _ := r.keystore.Lookup(candidate.Entity.ID)

	r.bus.Enqueue(ctx, candidate.Entity.ID, bus.QueuedMessage{
		MessageID:   event.MessageID,
		ChannelID:   event.ChannelID,
		ChannelName: event.ChannelName,
		ServerID:    event.ServerID,
		AuthorID:    event.AuthorID,
		AuthorName:  event.AuthorName,
		Content:     event.Content,
		Addressed:   addressed,
		Triggered:   triggered,
		Watch:       watch,
	}, key)

	if r.notifier == nil || !candidate.Entity.OwnerNotifyOptIn {
		return
	}
	if addressed {
		go r.notifyOwner(context.WithoutCancel(ctx), event, candidate.Entity, "addressed")
	} else if triggered {
		go r.notifyOwner(context.WithoutCancel(ctx), event, candidate.Entity, "triggered")
	}
}

func (r *Router) notifyOwner(ctx context.Context, event InboundEvent, entity registry.Entity, reason string) {
	if err := r.notifier.NotifyOwner(ctx, entity.OwnerID, event, entity, reason); err != nil {
		slog.Warn("router: owner notification failed", "entity_id", entity.ID, "owner_id", entity.OwnerID, "reason", reason, "error", err)
	}
}

// addressedTo reports whether the event mentions this Entity's role.
func addressedTo(entityRoleID string, mentionedRoleIDs []string, roleMap map[string]string, entityID string) bool {
	if entityRoleID == "" {
		return false
	}
	for _, roleID := range mentionedRoleIDs {
		if roleID == entityRoleID {
			return true
		}
		if roleMap != nil && roleMap[roleID] == entityID {
			return true
		}
	}
	return false
}

// triggeredBy reports whether any of the Entity's trigger words is a
// case-folded substring of content.
func triggeredBy(triggers []string, content string) bool {
	if len(triggers) == 0 {
		return false
	}
	folded := strings.ToLower(content)
	for _, trigger := range triggers {
		if trigger == "" {
			continue
		}
		if strings.Contains(folded, strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}
