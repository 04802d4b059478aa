// Package discord holds the single shared gateway connection every Entity
// rides on (spec.md §2 "one long-lived task holding the platform gateway
// connection"). It translates discordgo events into router.InboundEvent
// values and implements router.OwnerNotifier for addressed/triggered DMs.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/rakunlabs/arachne/internal/announce"
	"github.com/rakunlabs/arachne/internal/registry"
	"github.com/rakunlabs/arachne/internal/router"
	"github.com/rakunlabs/arachne/internal/webhook"
)

// Gateway owns the *discordgo.Session and feeds every inbound message
// event into the Router.
type Gateway struct {
	session *discordgo.Session
	router  *router.Router
	webhook *webhook.Proxy
}

func New(session *discordgo.Session, r *router.Router, wh *webhook.Proxy) *Gateway {
	g := &Gateway{session: session, router: r, webhook: wh}
	session.AddHandler(g.onMessageCreate)
	session.AddHandler(g.onMessageUpdate)
	session.Identify.Intents |= discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent | discordgo.IntentsGuilds
	return g
}

// Open starts the gateway connection. Blocks until the handshake completes
// or fails; event delivery continues on discordgo's own goroutines after
// that.
func (g *Gateway) Open() error {
	return g.session.Open()
}

// Close tears down the gateway connection.
func (g *Gateway) Close() error {
	return g.session.Close()
}

func (g *Gateway) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	g.route(s, m.Message)
}

// onMessageUpdate re-routes edited messages the same way as new ones — the
// Router applies the same eligibility pipeline regardless of why the
// content changed; spec.md does not distinguish "edit" from "create" for
// fan-out purposes.
func (g *Gateway) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	g.route(s, m.Message)
}

func (g *Gateway) route(s *discordgo.Session, m *discordgo.Message) {
	if m.GuildID == "" {
		// Bot DMs: spec.md §9 leaves DM routing unspecified; discarded.
		return
	}

	isSelf := s.State.User != nil && m.Author != nil && m.Author.ID == s.State.User.ID

	var ownerEntityID string
	if m.WebhookID != "" {
		ownerEntityID, _ = g.webhook.AttributionFor(m.ID)
	}

	mentionedRoleIDs := make([]string, len(m.MentionRoles))
	copy(mentionedRoleIDs, m.MentionRoles)

	authorID, authorName := "", ""
	if m.Author != nil {
		authorID, authorName = m.Author.ID, m.Author.Username
	}

	channelName := ""
	if ch, err := s.State.Channel(m.ChannelID); err == nil && ch != nil {
		channelName = ch.Name
	}

	g.router.Route(context.Background(), router.InboundEvent{
		MessageID:            m.ID,
		ServerID:             m.GuildID,
		ChannelID:            m.ChannelID,
		ChannelName:          channelName,
		AuthorID:             authorID,
		AuthorName:           authorName,
		Content:              m.Content,
		MentionedRoleIDs:     mentionedRoleIDs,
		IsSelf:               isSelf,
		WebhookOwnerEntityID: ownerEntityID,
	})
}

// NotifyOwner implements router.OwnerNotifier: it DMs the Entity owner that
// their Entity was addressed or triggered (spec.md §4.5, best-effort per
// §7's error table).
func (g *Gateway) NotifyOwner(ctx context.Context, ownerID string, event router.InboundEvent, entity registry.Entity, reason string) error {
	channel, err := g.session.UserChannelCreate(ownerID)
	if err != nil {
		return fmt.Errorf("open DM channel with owner %q: %w", ownerID, err)
	}

	content := fmt.Sprintf("**%s** was %s in <#%s>: %s", entity.Name, reason, event.ChannelID, truncate(event.Content, 500))
	if _, err := g.session.ChannelMessageSend(channel.ID, content); err != nil {
		return fmt.Errorf("send owner notification: %w", err)
	}

	slog.Debug("discord: owner notified", "entity_id", entity.ID, "owner_id", ownerID, "reason", reason)
	return nil
}

// AnnounceJoin posts an Entity's join announcement to its server's
// announcement channel (spec.md §6 "Announcement template grammar"). tmpl
// is the server's announce_message (ServerSettings, or an EntityServer
// override); an empty tmpl falls back to announce.Default. channelID is the
// resolved channel (EntityServer.AnnounceChannelID if set, else
// ServerSettings.AnnounceChannelID); a caller with neither should not call
// this at all.
func (g *Gateway) AnnounceJoin(ctx context.Context, channelID, tmpl string, entity registry.Entity, roleID string) error {
	var mention string
	if roleID != "" {
		mention = fmt.Sprintf("<@&%s>", roleID)
	}

	message := announce.Render(tmpl, announce.Data{
		Name:         entity.Name,
		Mention:      mention,
		Platform:     capitalize(entity.Platform),
		Owner:        entity.OwnerDisplayName,
		OwnerMention: ownerMention(entity.OwnerID),
	})
	if message == "" {
		return nil
	}

	if _, err := g.session.ChannelMessageSend(channelID, message); err != nil {
		return fmt.Errorf("post join announcement to channel %q: %w", channelID, err)
	}

	slog.Info("discord: join announcement posted", "entity_id", entity.ID, "channel_id", channelID)
	return nil
}

func ownerMention(ownerID string) string {
	if ownerID == "" {
		return ""
	}
	return fmt.Sprintf("<@%s>", ownerID)
}

// capitalize upper-cases the first rune of a platform tag ("claude" ->
// "Claude"); empty input stays empty so the announcement grammar's
// line-removal rule applies.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
