// Package webhook is the Webhook Proxy: it lazily acquires (or creates) one
// Discord webhook per channel, posts on an Entity's behalf with identity
// override, and tracks which Entity authored which outbound message so the
// Router can attribute later events (edits, reactions) back to it.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrThreadingUnsupported is returned for any operation that would require
// message_reference threading — a platform webhook limitation (spec.md
// §4.6).
var ErrThreadingUnsupported = errors.New("webhook: message_reference threading is not supported on webhook-posted messages")

// attributionTTL is how long a message_id -> entity_id mapping is kept so
// the Router can attribute edits/reactions back to the originating Entity.
const attributionTTL = 15 * time.Minute

// Identity overrides the username/avatar presented for one outbound post.
type Identity struct {
	Username  string
	AvatarURL string
}

type attribution struct {
	entityID  string
	expiresAt time.Time
}

// inflightAcquire tracks one in-progress webhook acquisition for a channel.
// Concurrent callers for the same channel await the same done channel
// instead of each issuing their own Discord API calls.
type inflightAcquire struct {
	done    chan struct{}
	webhook *discordgo.Webhook
	err     error
}

// Proxy is the Webhook Proxy. One Proxy serves every Entity; the per-call
// Identity is what distinguishes one Entity's post from another's.
type Proxy struct {
	session *discordgo.Session

	mu        sync.Mutex
	webhooks  map[string]*discordgo.Webhook // channel id -> cached webhook
	inflight  map[string]*inflightAcquire   // channel id -> pending acquire

	attrMu sync.Mutex
	attrs  map[string]attribution // message id -> attribution

	stop chan struct{}
	done chan struct{}
}

func New(session *discordgo.Session) *Proxy {
	p := &Proxy{
		session:  session,
		webhooks: make(map[string]*discordgo.Webhook),
		inflight: make(map[string]*inflightAcquire),
		attrs:    make(map[string]attribution),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

func (p *Proxy) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Proxy) sweepLoop() {
	defer close(p.done)

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweepAttributions()
		}
	}
}

func (p *Proxy) sweepAttributions() {
	now := time.Now()
	p.attrMu.Lock()
	defer p.attrMu.Unlock()
	for id, a := range p.attrs {
		if now.After(a.expiresAt) {
			delete(p.attrs, id)
		}
	}
}

// AttributeMessage records which Entity authored an outbound message, so a
// later edit or reaction event on it can be recognized as webhook-owned.
func (p *Proxy) AttributeMessage(messageID, entityID string) {
	p.attrMu.Lock()
	defer p.attrMu.Unlock()
	p.attrs[messageID] = attribution{entityID: entityID, expiresAt: time.Now().Add(attributionTTL)}
}

// AttributionFor returns the Entity id that authored messageID, if this
// process remembers posting it.
func (p *Proxy) AttributionFor(messageID string) (string, bool) {
	p.attrMu.Lock()
	defer p.attrMu.Unlock()
	a, ok := p.attrs[messageID]
	if !ok || time.Now().After(a.expiresAt) {
		return "", false
	}
	return a.entityID, true
}

// acquireWebhook returns the channel's webhook, creating one if necessary.
// Concurrent acquisitions for the same channel coalesce: only the first
// caller talks to Discord, the rest await its result (directly modeled on
// the teacher's deviceFlowManager one-flow-per-key pattern, generalized
// from "one device-auth flow per provider key" to "one webhook acquisition
// per channel").
func (p *Proxy) acquireWebhook(ctx context.Context, channelID string) (*discordgo.Webhook, error) {
	p.mu.Lock()
	if wh, ok := p.webhooks[channelID]; ok {
		p.mu.Unlock()
		return wh, nil
	}
	if ia, ok := p.inflight[channelID]; ok {
		p.mu.Unlock()
		select {
		case <-ia.done:
			return ia.webhook, ia.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ia := &inflightAcquire{done: make(chan struct{})}
	p.inflight[channelID] = ia
	p.mu.Unlock()

	wh, err := p.fetchOrCreateWebhook(ctx, channelID)

	ia.webhook, ia.err = wh, err
	close(ia.done)

	p.mu.Lock()
	delete(p.inflight, channelID)
	if err == nil {
		p.webhooks[channelID] = wh
	}
	p.mu.Unlock()

	return wh, err
}

const webhookName = "arachne"

func (p *Proxy) fetchOrCreateWebhook(ctx context.Context, channelID string) (*discordgo.Webhook, error) {
	existing, err := p.session.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list channel webhooks: %w", err)
	}
	for _, wh := range existing {
		if wh.Name == webhookName {
			return wh, nil
		}
	}

	created, err := p.session.WebhookCreate(channelID, webhookName, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create channel webhook: %w", err)
	}
	return created, nil
}

// cacheBust appends a volatile query parameter to an avatar URL. Discord
// caches avatar images aggressively per URL, so a bare Entity avatar URL
// would never propagate a change; bust it on every call (spec.md §4.6).
func cacheBust(avatarURL string) string {
	if avatarURL == "" {
		return ""
	}
	sep := "?"
	if strings.ContainsRune(avatarURL, '?') {
		sep = "&"
	}
	return fmt.Sprintf("%s%sv=%d", avatarURL, sep, time.Now().UnixNano())
}

// SendText posts a plain-text message, allowing user mentions.
func (p *Proxy) SendText(ctx context.Context, channelID, entityID string, id Identity, content string) (*discordgo.Message, error) {
	wh, err := p.acquireWebhook(ctx, channelID)
	if err != nil {
		return nil, err
	}

	msg, err := p.session.WebhookExecute(wh.ID, wh.Token, true, &discordgo.WebhookParams{
		Content:   content,
		Username:  id.Username,
		AvatarURL: cacheBust(id.AvatarURL),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers, discordgo.AllowedMentionTypeRoles},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("webhook execute (text): %w", err)
	}

	p.AttributeMessage(msg.ID, entityID)
	return msg, nil
}

// SendFile posts raw file bytes as an attachment.
func (p *Proxy) SendFile(ctx context.Context, channelID, entityID string, id Identity, filename string, content []byte) (*discordgo.Message, error) {
	wh, err := p.acquireWebhook(ctx, channelID)
	if err != nil {
		return nil, err
	}

	msg, err := p.session.WebhookExecute(wh.ID, wh.Token, true, &discordgo.WebhookParams{
		Username:  id.Username,
		AvatarURL: cacheBust(id.AvatarURL),
		Files: []*discordgo.File{
			{Name: filename, ContentType: "application/octet-stream", Reader: bytes.NewReader(content)},
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers, discordgo.AllowedMentionTypeRoles},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("webhook execute (file): %w", err)
	}

	p.AttributeMessage(msg.ID, entityID)
	return msg, nil
}

// SendEmbed posts an embed. Embeds disable all mentions (spec.md §4.6).
func (p *Proxy) SendEmbed(ctx context.Context, channelID, entityID string, id Identity, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	wh, err := p.acquireWebhook(ctx, channelID)
	if err != nil {
		return nil, err
	}

	msg, err := p.session.WebhookExecute(wh.ID, wh.Token, true, &discordgo.WebhookParams{
		Username:        id.Username,
		AvatarURL:       cacheBust(id.AvatarURL),
		Embeds:          []*discordgo.MessageEmbed{embed},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("webhook execute (embed): %w", err)
	}

	p.AttributeMessage(msg.ID, entityID)
	return msg, nil
}

// Edit edits a previously posted webhook message. Threading
// (message_reference) is never supported, regardless of operation.
func (p *Proxy) Edit(ctx context.Context, channelID, messageID, content string) (*discordgo.Message, error) {
	wh, err := p.acquireWebhook(ctx, channelID)
	if err != nil {
		return nil, err
	}

	msg, err := p.session.WebhookMessageEdit(wh.ID, wh.Token, messageID, &discordgo.WebhookEdit{
		Content: &content,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("webhook message edit: %w", err)
	}
	return msg, nil
}

// DeleteRole best-effort removes the Entity's auto-created mentionable
// role. Failure does not roll back the EntityServer row deletion (spec.md
// §4.7 leave_server).
func (p *Proxy) DeleteRole(ctx context.Context, serverID, roleID string) error {
	if roleID == "" {
		return nil
	}
	if err := p.session.GuildRoleDelete(serverID, roleID, discordgo.WithContext(ctx)); err != nil {
		slog.Warn("webhook: best-effort role deletion failed", "server_id", serverID, "role_id", roleID, "error", err)
		return err
	}
	return nil
}
