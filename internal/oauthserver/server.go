// Package oauthserver implements the OAuth 2.1 authorization server spec.md
// §4.8 describes: RFC 8414/9728 discovery, RFC 7591 dynamic client
// registration, a PKCE-S256 authorization-code flow that interposes Discord
// identity verification before an Entity-ownership consent step, and token
// issuance/refresh. It shares the dual-auth JWT shape with internal/mcpserver
// through internal/oauthtoken, so the two packages never import each other.
package oauthserver

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/rakunlabs/arachne/internal/registry"
)

// Server serves the discovery, registration, authorize/consent and token
// endpoints under the process's base URL.
type Server struct {
	registry *registry.Registry

	baseURL   string
	jwtSecret string

	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	authCodeTTL     time.Duration

	discord     oauth2.Config
	httpClient  *http.Client
}

// New builds a Server. discordClientID/discordClientSecret are the platform
// app credentials used for the identity-verification hop in the authorize
// flow; they are never handed to the MCP client.
func New(reg *registry.Registry, baseURL, jwtSecret, discordClientID, discordClientSecret string, accessTTL, refreshTTL, authCodeTTL time.Duration) *Server {
	return &Server{
		registry:        reg,
		baseURL:         baseURL,
		jwtSecret:       jwtSecret,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		authCodeTTL:     authCodeTTL,
		discord: oauth2.Config{
			ClientID:     discordClientID,
			ClientSecret: discordClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
			RedirectURL: baseURL + "/oauth/discord-callback",
			Scopes:      []string{"identify"},
		},
		httpClient: http.DefaultClient,
	}
}
