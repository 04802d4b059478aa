package registry

import (
	"time"

	"github.com/worldline-go/types"
)

// Platform tags an Entity is built for, used only for display/announcement
// purposes.
const (
	PlatformClaude = "claude"
	PlatformGPT    = "gpt"
	PlatformGemini = "gemini"
	PlatformOther  = "other"
)

// Entity is a named identity that shares the bridge's single upstream bot
// connection. The raw API key is never stored; only a bcrypt hash and the
// salt used for Message Bus key derivation survive creation.
type Entity struct {
	ID          string
	Name        string
	AvatarURL   string
	Description string
	AccentColor string
	Platform    string

	OwnerID          string
	OwnerDisplayName string

	// OwnerNotifyOptIn gates the Router's owner-DM side effect (spec.md
	// §4.5 step 6: "...and the Entity's owner opts in"). Defaults to false
	// on creation; an owner must explicitly enable it.
	OwnerNotifyOptIn bool

	APIKeyHash string
	KeySalt    []byte

	Active bool

	CreatedAt time.Time
}

// EntityServer is the per-(Entity, server) permission row: the two-tier
// admin-ceiling / owner-tuning model.
type EntityServer struct {
	EntityID string
	ServerID string

	// ChannelWhitelist, empty ⇒ "all channels" (admin ceiling).
	ChannelWhitelist Set
	// ToolWhitelist, empty ⇒ "all tools" (admin ceiling).
	ToolWhitelist Set

	// WatchChannels and BlockedChannels are owner-tuned subsets of
	// ChannelWhitelist; the two are always disjoint.
	WatchChannels   Set
	BlockedChannels Set

	// RoleID is the platform role auto-created to make the Entity
	// mentionable on this server. Empty if no role has been created yet.
	RoleID string

	// AnnounceChannelID, if set, overrides ServerSettings.AnnounceChannelID
	// for this Entity's join announcement.
	AnnounceChannelID string

	// TemplateID, if bound, ties this row to a ServerTemplate: future
	// template edits propagate until a manual edit detaches the binding.
	TemplateID string

	Triggers []string
}

// ServerSettings is the one-per-server configuration for join announcements.
type ServerSettings struct {
	ServerID          string
	AnnounceChannelID string
	AnnounceMessage   string
	DefaultTemplateID string
}

// ServerTemplate is a reusable (channels, tools) preset for a server.
type ServerTemplate struct {
	ID       string
	ServerID string
	Name     string
	Channels Set
	Tools    Set
}

// ServerRequest statuses.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// ServerRequest tracks an Entity owner's request to join a server, subject
// to admin approval. Terminal states are write-once.
type ServerRequest struct {
	ID       string
	EntityID string
	ServerID string
	Status   string

	RequesterID          string
	RequesterDisplayName string

	ReviewerID string
	ReviewedAt types.Null[types.Time]

	CreatedAt time.Time
}

// OAuthClient is a dynamically registered OAuth 2.1 client (RFC 7591).
type OAuthClient struct {
	ID                      string
	Name                    string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	TokenEndpointAuthMethod string
	CreatedAt               time.Time
}

// OAuthAuthCode is a one-time PKCE authorization code, TTL 10 minutes.
type OAuthAuthCode struct {
	Code            string
	ClientID        string
	RedirectURI     string
	Scope           string
	CodeChallenge   string
	EntityID        string
	PlatformUserID  string
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// OAuthAccessToken is kept for revocation bookkeeping only; the JWT itself
// is self-contained and carries the same claims.
type OAuthAccessToken struct {
	JTI            string
	EntityID       string
	PlatformUserID string
	ClientID       string
	Scope          string
	ExpiresAt      types.Null[types.Time]
	Revoked        bool
	CreatedAt      time.Time
}

// OAuthRefreshToken is opaque, TTL 30 days, single-use.
type OAuthRefreshToken struct {
	Token          string
	AccessTokenJTI string
	EntityID       string
	PlatformUserID string
	ClientID       string
	Scope          string
	ExpiresAt      types.Null[types.Time]
	CreatedAt      time.Time
}
