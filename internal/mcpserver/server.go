// Package mcpserver wraps pkg/mcp's generic JSON-RPC-2.0 engine into the
// stateless, dual-authenticated, capability-scoped MCP Endpoint spec.md
// §4.7 describes. Every request builds a fresh *mcp.MCP instance; nothing
// here persists across requests except the shared Registry/Bus/Keystore/
// Webhook references.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/rakunlabs/arachne/internal/bus"
	"github.com/rakunlabs/arachne/internal/keystore"
	"github.com/rakunlabs/arachne/internal/mcptools"
	"github.com/rakunlabs/arachne/internal/oauthtoken"
	"github.com/rakunlabs/arachne/internal/registry"
	"github.com/rakunlabs/arachne/internal/webhook"
	"github.com/rakunlabs/arachne/pkg/mcp"
)

// Server serves POST /mcp/{entity_id}.
type Server struct {
	registry  *registry.Registry
	bus       *bus.Bus
	keystore  *keystore.Store
	webhook   *webhook.Proxy
	session   *discordgo.Session
	jwtSecret string
	baseURL   string
}

func New(reg *registry.Registry, b *bus.Bus, ks *keystore.Store, wh *webhook.Proxy, session *discordgo.Session, jwtSecret, baseURL string) *Server {
	return &Server{registry: reg, bus: b, keystore: ks, webhook: wh, session: session, jwtSecret: jwtSecret, baseURL: baseURL}
}

// entityIDFromPath pulls the trailing path segment regardless of how the
// router expresses its wildcard — the teacher's own routes are registered
// with a bare "*" and the handlers extract segments themselves.
func entityIDFromPath(path string) string {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[idx+1:]
}

// HandleGet implements the stateless-mode 405 (spec.md §4.7 "HTTP methods").
func (s *Server) HandleGet(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "GET not supported in stateless mode", http.StatusMethodNotAllowed)
}

// HandleDelete is a no-op 200: there is no per-session state to tear down.
func (s *Server) HandleDelete(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandlePost runs dual-auth, computes the Entity's capability set,
// constructs a fresh *mcp.MCP with the full catalog behind a capability
// gate, and serves the JSON-RPC request.
func (s *Server) HandlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityID := entityIDFromPath(r.URL.Path)
	if entityID == "" {
		http.Error(w, "missing entity id", http.StatusNotFound)
		return
	}

	entity, err := s.registry.GetEntity(ctx, entityID)
	if errors.Is(err, registry.ErrNotFound) || (entity != nil && !entity.Active) {
		http.Error(w, "entity not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("lookup entity: %v", err), http.StatusInternalServerError)
		return
	}

	derivedKey, authorized := s.authenticate(ctx, r, entity)
	if !authorized {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(
			`Bearer resource_metadata="%s/.well-known/oauth-protected-resource", error="invalid_token"`, s.baseURL))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rows, err := s.registry.EntityServersByEntity(ctx, entityID)
	if err != nil {
		http.Error(w, fmt.Sprintf("load permissions: %v", err), http.StatusInternalServerError)
		return
	}
	cap := computeCapability(rows)

	tc := &mcptools.Context{
		Ctx:        ctx,
		Entity:     *entity,
		Servers:    rows,
		Registry:   s.registry,
		Bus:        s.bus,
		Keystore:   s.keystore,
		Webhook:    s.webhook,
		Session:    s.session,
		DerivedKey: derivedKey,
	}

	m := mcp.New()
	for _, spec := range mcptools.All() {
		m.Tools.Add(mcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		}, gatedHandler(spec, cap, tc))
	}

	m.ServeHTTP(w, r)
}

// ErrChannelBlocked is returned by gatedHandler when an identity-override
// posting tool targets a channel the Entity's owner has blocked. Blocked
// channels stay whitelisted for read-only routing (spec.md §4.2's
// derived-state table), but posting under the Entity's identity is a hard
// 400, never silently downgraded or skipped.
var ErrChannelBlocked = errors.New("channel is blocked for this entity")

// identityPostTools are the C5 identity-override posts: every tool that
// writes to a channel under the Entity's own name/avatar, as opposed to
// read-only or moderation tools (delete_message, pin_message) that don't
// impersonate the Entity.
var identityPostTools = map[string]bool{
	"send_message": true,
	"send_file":    true,
	"edit_message": true,
	"introduce":    true,
}

// gatedHandler centralizes the channel/server/tool whitelist checks
// (spec.md §4.7 "these checks are centralized") in front of every tool
// body, regardless of which tool is invoked.
func gatedHandler(spec *mcptools.ToolSpec, cap Capability, tc *mcptools.Context) mcp.ToolHandler {
	return func(args map[string]any) (any, error) {
		if !cap.allowsTool(spec.Name) {
			return nil, fmt.Errorf("tool %q is not permitted for this entity", spec.Name)
		}
		channelID, _ := args["channel_id"].(string)
		if channelID != "" && !cap.allowsChannel(channelID) {
			return nil, fmt.Errorf("channel %q is outside this entity's permitted channels", channelID)
		}
		if identityPostTools[spec.Name] && cap.blocksChannel(channelID) {
			return nil, fmt.Errorf("%w: %q is blocked, %s is not permitted", ErrChannelBlocked, channelID, spec.Name)
		}
		if serverID, _ := args["server_id"].(string); serverID != "" && !cap.allowsServer(serverID) {
			return nil, fmt.Errorf("server %q is outside this entity's permitted servers", serverID)
		}
		return spec.Handler(tc, args)
	}
}

// authenticate runs the §4.7 dual-auth order: JWT bearer first, then
// bcrypt-hash API key. A successful API-key match derives and caches the
// Message Bus encryption key; the Bus itself retroactively encrypts any
// plaintext backlog the next time it is read with that key.
func (s *Server) authenticate(ctx context.Context, r *http.Request, entity *registry.Entity) ([]byte, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return nil, false
	}

	if claims, err := oauthtoken.Parse(s.jwtSecret, token); err == nil && claims.EntityID == entity.ID {
		revoked, err := s.registry.IsAccessTokenRevoked(ctx, claims.ID)
		if err == nil && !revoked {
			return nil, true
		}
	}

	key, err := s.keystore.AuthenticateAPIKey(entity.ID, token, entity.APIKeyHash, entity.KeySalt)
	if err == nil {
		return key, true
	}

	return nil, false
}
