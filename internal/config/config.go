package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/alan"
	_ "github.com/rakunlabs/chu/loader/external/loaderconsul"
	_ "github.com/rakunlabs/chu/loader/external/loadervault"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"

	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/tell"
)

var Service = ""

type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	// Discord holds the bot token and platform OAuth client credentials
	// used both for the gateway connection and the OAuth AS's platform
	// identity verification step.
	Discord Discord `cfg:"discord"`

	// OAuth configures the bridge's own OAuth 2.1 authorization server.
	OAuth OAuth `cfg:"oauth"`

	// Bus configures the in-memory per-Entity message queues.
	Bus Bus `cfg:"bus"`

	Store     Store       `cfg:"store"`
	Server    Server      `cfg:"server"`
	Telemetry tell.Config `cfg:"telemetry,noprefix"`
}

// Discord holds bot and platform-OAuth credentials.
type Discord struct {
	// BotToken authenticates the single shared gateway connection.
	BotToken string `cfg:"bot_token" log:"-"`

	// OAuthClientID and OAuthClientSecret are the platform's OAuth app
	// credentials, used to exchange an authorization code for the
	// authenticated user's profile during the consent flow.
	OAuthClientID     string `cfg:"oauth_client_id"`
	OAuthClientSecret string `cfg:"oauth_client_secret" log:"-"`
}

// OAuth configures the bridge's own authorization server.
type OAuth struct {
	// JWTSecret signs access tokens and dashboard session tokens (HS256).
	JWTSecret string `cfg:"jwt_secret" log:"-"`

	// BaseURL is this process's externally reachable base URL, used in
	// discovery metadata, JWT iss/aud claims, and redirect validation.
	BaseURL string `cfg:"base_url"`

	// AccessTokenTTL and RefreshTokenTTL override the spec defaults
	// (1h / 30d) for tests or unusual deployments.
	AccessTokenTTL  time.Duration `cfg:"access_token_ttl" default:"1h"`
	RefreshTokenTTL time.Duration `cfg:"refresh_token_ttl" default:"720h"`
	AuthCodeTTL     time.Duration `cfg:"auth_code_ttl" default:"10m"`
}

// Bus configures the bounded per-Entity message queues.
type Bus struct {
	// TTL is how long a queued message remains readable. Clamped to
	// [0, 1h] by the bus on construction; default 15m.
	TTL time.Duration `cfg:"ttl" default:"15m"`

	// Cap is the maximum number of messages retained per Entity queue.
	Cap int `cfg:"cap" default:"500"`

	// SweepInterval is how often the eviction ticker runs.
	SweepInterval time.Duration `cfg:"sweep_interval" default:"60s"`
}

type Server struct {
	BasePath string `cfg:"base_path"`

	Port string `cfg:"port" default:"8080"`
	Host string `cfg:"host"`

	// DataDir is where the SQLite registry database file lives.
	DataDir string `cfg:"data_dir" default:"./data"`

	// ForwardAuth, if set, configures the API to forward auth requests to an external
	// authentication service (used only by the out-of-scope dashboard API).
	ForwardAuth *mforwardauth.ForwardAuth `cfg:"forward_auth"`

	// AdminToken, if set, protects operator-only endpoints with bearer
	// token authentication. Requests must include "Authorization: Bearer <token>".
	AdminToken string `cfg:"admin_token" log:"-"`

	// Operators is the list of platform user ids allowed operator-level
	// actions regardless of per-server admin role.
	Operators []string `cfg:"operators"`

	// UserHeader is the HTTP header name that contains the authenticated user's
	// id (populated by the forward auth middleware, dashboard API only).
	UserHeader string `cfg:"user_header" default:"X-User"`

	// Alan, if set, enables distributed clustering via UDP peer discovery,
	// used to broadcast Key Store invalidations across instances.
	Alan *alan.Config `cfg:"alan"`
}

type Store struct {
	SQLite StoreSQLite `cfg:"sqlite"`
}

type StoreSQLite struct {
	TablePrefix *string `cfg:"table_prefix"`
	Datasource  string  `cfg:"datasource"`

	Migrate Migrate `cfg:"migrate"`
}

type Migrate struct {
	Datasource string            `cfg:"datasource" log:"-"`
	Schema     string            `cfg:"schema"`
	Table      string            `cfg:"table"`
	Values     map[string]string `cfg:"values"`
}

func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("ARACHNE_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	if cfg.Store.SQLite.Datasource == "" {
		cfg.Store.SQLite.Datasource = cfg.Server.DataDir + "/arachne.db"
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
