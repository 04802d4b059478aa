package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/arachne/internal/bus"
	"github.com/rakunlabs/arachne/internal/cluster"
	"github.com/rakunlabs/arachne/internal/config"
	"github.com/rakunlabs/arachne/internal/discord"
	"github.com/rakunlabs/arachne/internal/keystore"
	"github.com/rakunlabs/arachne/internal/mcpserver"
	"github.com/rakunlabs/arachne/internal/oauthserver"
	"github.com/rakunlabs/arachne/internal/registry"
	"github.com/rakunlabs/arachne/internal/router"
	"github.com/rakunlabs/arachne/internal/server"
	"github.com/rakunlabs/arachne/internal/webhook"
)

var (
	name    = "arachnebridge"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg, err := registry.New(ctx, &cfg.Store.SQLite)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer reg.Close()

	ks := keystore.New()

	b := bus.New(bus.Config{
		TTL:           cfg.Bus.TTL,
		Cap:           cfg.Bus.Cap,
		SweepInterval: cfg.Bus.SweepInterval,
	})
	defer b.Stop()

	session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}

	wh := webhook.New(session)
	defer wh.Stop()

	// Router and Gateway depend on each other; Router is built first with a
	// nil notifier and wired up once the Gateway (its OwnerNotifier
	// implementation) exists.
	r := router.New(reg, b, ks, nil)
	gw := discord.New(session, r, wh)
	r.SetNotifier(gw)

	if err := gw.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer gw.Close()

	mcp := mcpserver.New(reg, b, ks, wh, session, cfg.OAuth.JWTSecret, cfg.OAuth.BaseURL)

	oauth := oauthserver.New(reg, cfg.OAuth.BaseURL, cfg.OAuth.JWTSecret,
		cfg.Discord.OAuthClientID, cfg.Discord.OAuthClientSecret,
		cfg.OAuth.AccessTokenTTL, cfg.OAuth.RefreshTokenTTL, cfg.OAuth.AuthCodeTTL)

	cl, err := cluster.New(cfg.Server.Alan)
	if err != nil {
		return fmt.Errorf("create cluster: %w", err)
	}
	if cl != nil {
		go func() {
			if err := cl.Start(ctx, ks.Clear); err != nil && ctx.Err() == nil {
				slog.Error("cluster stopped", "error", err)
			}
		}()
		defer cl.Stop() //nolint:errcheck
	}

	srv := server.New(cfg.Server, b, mcp, oauth)

	slog.Info("arachnebridge starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
	return srv.Start(ctx)
}
