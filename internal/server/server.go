// Package server wires the bridge's three HTTP surfaces — the MCP Endpoint,
// the OAuth Authorization Server, and the unauthenticated health probe —
// behind the teacher's ada middleware stack (spec.md §6 "External
// interfaces"). There is no dashboard UI in this repo: spec.md's component
// table (§2) names no such component, and §6 scopes the dashboard API
// itself out ("out of scope except that it MUST authenticate using a
// session JWT..."), so the teacher's embedded dist/* static folder handler
// has no SPEC_FULL.md home and is dropped (see DESIGN.md).
package server

import (
	"context"
	"net"
	"time"

	"github.com/rakunlabs/ada"

	mcors "github.com/rakunlabs/ada/middleware/cors"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"

	"github.com/rakunlabs/arachne/internal/bus"
	"github.com/rakunlabs/arachne/internal/config"
	"github.com/rakunlabs/arachne/internal/mcpserver"
	"github.com/rakunlabs/arachne/internal/oauthserver"
)

// Server is the process's single HTTP listener, fronting the MCP Endpoint
// and OAuth AS behind a shared middleware stack.
type Server struct {
	config config.Server

	server *ada.Server

	bus *bus.Bus

	startedAt time.Time
}

// New builds the route table. mcp and oauth are already fully constructed
// (they hold their own Registry/Bus/Keystore/Webhook references); Server
// only wires HTTP routing and the health probe on top of them.
func New(cfg config.Server, b *bus.Bus, mcp *mcpserver.Server, oauth *oauthserver.Server) *Server {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)

	s := &Server{
		config:    cfg,
		server:    mux,
		bus:       b,
		startedAt: time.Now(),
	}

	baseGroup := mux.Group(cfg.BasePath)

	// cfg.ForwardAuth is intentionally not wired here: it exists to front
	// the dashboard API's /api/* routes (spec.md §6), and this repo builds
	// no dashboard API (see DESIGN.md). The MCP Endpoint and OAuth AS carry
	// their own dual-auth / platform-identity checks instead.

	baseGroup.GET("/health", s.HandleHealth)

	baseGroup.POST("/mcp/*", mcp.HandlePost)
	baseGroup.GET("/mcp/*", mcp.HandleGet)
	baseGroup.DELETE("/mcp/*", mcp.HandleDelete)

	baseGroup.GET("/.well-known/oauth-protected-resource", oauth.HandleProtectedResourceMetadata)
	baseGroup.GET("/.well-known/oauth-authorization-server", oauth.HandleAuthorizationServerMetadata)
	baseGroup.POST("/oauth/register", oauth.HandleRegister)
	baseGroup.GET("/oauth/authorize", oauth.HandleAuthorize)
	baseGroup.GET("/oauth/discord-callback", oauth.HandleDiscordCallback)
	baseGroup.POST("/oauth/consent", oauth.HandleConsent)
	baseGroup.POST("/oauth/token", oauth.HandleToken)

	return s
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	return s.server.StartWithContext(ctx, net.JoinHostPort(s.config.Host, s.config.Port))
}
