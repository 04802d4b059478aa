// Package cluster provides distributed coordination for multiple Arachne
// instances using the alan UDP peer discovery library. It wraps alan to
// provide:
//   - A distributed lock guarding template propagation (so two instances
//     editing the same ServerTemplate don't race each other's fan-out writes)
//   - Broadcasting Key Store invalidations to every peer, so an API-key
//     regeneration on one instance evicts the stale derived key everywhere
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rakunlabs/alan"
)

const (
	// lockTemplatePropagation guards PropagateTemplate's multi-row fan-out.
	lockTemplatePropagation = "template-propagation"

	// msgTypeInvalidateEntity identifies a Key Store invalidation broadcast.
	msgTypeInvalidateEntity = "invalidate-entity"
)

// clusterMessage is the JSON envelope for messages sent between peers.
type clusterMessage struct {
	Type     string `json:"type"`
	EntityID string `json:"entity_id,omitempty"`
}

// Cluster wraps an alan instance with Arachne-specific distributed
// coordination.
type Cluster struct {
	alan *alan.Alan
}

// New creates a Cluster from the server's alan configuration.
// Returns nil, nil if cfg is nil (clustering disabled).
func New(cfg *alan.Config) (*Cluster, error) {
	if cfg == nil {
		return nil, nil
	}

	a, err := alan.New(*cfg)
	if err != nil {
		return nil, fmt.Errorf("create alan instance: %w", err)
	}

	return &Cluster{alan: a}, nil
}

// Start begins the alan peer discovery system in the background. onInvalidate
// is invoked with the Entity id whenever this instance receives another
// peer's invalidation broadcast; the caller wires it to keystore.Store.Clear.
//
// Start blocks until the context is cancelled. It should be run in a goroutine.
func (c *Cluster) Start(ctx context.Context, onInvalidate func(entityID string)) error {
	c.alan.OnPeerJoin(func(addr *net.UDPAddr) {
		slog.Info("cluster peer joined", "addr", addr.String())
	})

	c.alan.OnPeerLeave(func(addr *net.UDPAddr) {
		slog.Info("cluster peer left", "addr", addr.String())
	})

	handler := func(_ context.Context, msg alan.Message) {
		var cm clusterMessage
		if err := json.Unmarshal(msg.Data, &cm); err != nil {
			slog.Warn("cluster: invalid message", "from", msg.Addr, "error", err)
			return
		}

		switch cm.Type {
		case msgTypeInvalidateEntity:
			slog.Info("cluster: received key store invalidation from peer", "from", msg.Addr, "entity_id", cm.EntityID)
			if onInvalidate != nil && cm.EntityID != "" {
				onInvalidate(cm.EntityID)
			}
			if msg.IsRequest() {
				c.alan.Reply(msg, []byte("ok")) //nolint:errcheck
			}

		default:
			slog.Debug("cluster: unknown message type", "type", cm.Type, "from", msg.Addr)
		}
	}

	return c.alan.Start(ctx, handler)
}

// Stop gracefully leaves the cluster.
func (c *Cluster) Stop() error {
	return c.alan.Stop()
}

// LockTemplatePropagation acquires the distributed lock guarding
// PropagateTemplate's multi-row fan-out. Blocks until acquired or ctx is
// cancelled.
func (c *Cluster) LockTemplatePropagation(ctx context.Context) error {
	return c.alan.Lock(ctx, lockTemplatePropagation)
}

// UnlockTemplatePropagation releases the template-propagation lock.
func (c *Cluster) UnlockTemplatePropagation() error {
	return c.alan.Unlock(lockTemplatePropagation)
}

// BroadcastInvalidation tells every peer to evict entityID's cached Key
// Store entry (spec.md §4.4 — a regenerated API key must stop decrypting
// new messages on every instance, not just the one that handled the
// regeneration request).
func (c *Cluster) BroadcastInvalidation(ctx context.Context, entityID string) error {
	peers := c.alan.Peers()
	if len(peers) == 0 {
		return nil
	}

	data, err := json.Marshal(clusterMessage{Type: msgTypeInvalidateEntity, EntityID: entityID})
	if err != nil {
		return fmt.Errorf("marshal cluster message: %w", err)
	}

	broadcastCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	replies, err := c.alan.SendAndWaitReply(broadcastCtx, data)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("broadcast key store invalidation: %w", err)
	}

	if len(replies) < len(peers) {
		slog.Warn("cluster: not all peers acknowledged key store invalidation",
			"expected", len(peers), "received", len(replies), "entity_id", entityID)
	}

	return nil
}

// Ready returns a channel that is closed when the cluster is ready.
func (c *Cluster) Ready() <-chan struct{} {
	return c.alan.Ready()
}
