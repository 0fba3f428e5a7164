// Package discord connects the bridge registry, relay and commands to Discord through discordgo.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/bridgebot/internal/bridge"
	"github.com/memohai/bridgebot/internal/relay"
)

// REST is the subset of *discordgo.Session REST calls the adapter uses.
type REST interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	ChannelWebhooks(channelID string, options ...discordgo.RequestOption) ([]*discordgo.Webhook, error)
	WebhookCreate(channelID, name, avatar string, options ...discordgo.RequestOption) (*discordgo.Webhook, error)
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// StateCache is the gateway state consulted before falling back to REST.
type StateCache interface {
	Channel(channelID string) (*discordgo.Channel, error)
	Guild(guildID string) (*discordgo.Guild, error)
}

// Adapter implements bridge.Platform and relay.Platform on top of discordgo.
type Adapter struct {
	rest   REST
	state  StateCache
	logger *slog.Logger
}

// NewAdapter creates an adapter. state may be nil.
func NewAdapter(log *slog.Logger, rest REST, state StateCache) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		rest:   rest,
		state:  state,
		logger: log.With(slog.String("adapter", "discord")),
	}
}

// NewSessionAdapter creates an adapter backed by a gateway session.
func NewSessionAdapter(log *slog.Logger, s *discordgo.Session) *Adapter {
	var state StateCache
	if s.State != nil {
		state = s.State
	}
	return NewAdapter(log, s, state)
}

// Channel resolves a channel and its guild name.
func (a *Adapter) Channel(ctx context.Context, channelID string) (bridge.ChannelInfo, error) {
	ch, err := a.lookupChannel(ctx, channelID)
	if err != nil {
		return bridge.ChannelInfo{}, err
	}
	return bridge.ChannelInfo{
		ID:        ch.ID,
		Name:      ch.Name,
		GuildID:   ch.GuildID,
		GuildName: a.guildName(ctx, ch.GuildID),
	}, nil
}

func (a *Adapter) lookupChannel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, bridge.ErrChannelNotFound
	}
	if a.state != nil {
		if ch, err := a.state.Channel(channelID); err == nil && ch != nil {
			return ch, nil
		}
	}
	ch, err := a.rest.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) || isForbidden(err) {
			return nil, fmt.Errorf("channel %s: %w", channelID, bridge.ErrChannelNotFound)
		}
		return nil, fmt.Errorf("channel %s: %w", channelID, err)
	}
	return ch, nil
}

func (a *Adapter) guildName(ctx context.Context, guildID string) string {
	if guildID == "" {
		return ""
	}
	if a.state != nil {
		if g, err := a.state.Guild(guildID); err == nil && g != nil && g.Name != "" {
			return g.Name
		}
	}
	g, err := a.rest.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		a.logger.Debug("guild lookup failed", slog.String("guild_id", guildID), slog.Any("error", err))
		return ""
	}
	return g.Name
}

// EnsureWebhook reuses a token-bearing webhook with the given name or creates one.
func (a *Adapter) EnsureWebhook(ctx context.Context, channelID, name string) (bridge.Webhook, error) {
	hooks, err := a.rest.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return bridge.Webhook{}, classify(fmt.Errorf("list webhooks: %w", err), bridge.ErrChannelNotFound)
	}
	for _, h := range hooks {
		if h != nil && h.Name == name && h.Token != "" {
			return bridge.Webhook{ID: h.ID, Token: h.Token, ChannelID: channelID}, nil
		}
	}
	h, err := a.rest.WebhookCreate(channelID, name, "", discordgo.WithContext(ctx))
	if err != nil {
		return bridge.Webhook{}, classify(fmt.Errorf("create webhook: %w", err), bridge.ErrChannelNotFound)
	}
	a.logger.Info("webhook created", slog.String("channel_id", channelID), slog.String("webhook_id", h.ID))
	return bridge.Webhook{ID: h.ID, Token: h.Token, ChannelID: channelID}, nil
}

// ExecuteWebhook posts with every mention type disabled.
func (a *Adapter) ExecuteWebhook(ctx context.Context, hook bridge.Webhook, post relay.Post) error {
	params := &discordgo.WebhookParams{
		Content:   post.Content,
		Username:  post.Username,
		AvatarURL: post.AvatarURL,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}
	if _, err := a.rest.WebhookExecute(hook.ID, hook.Token, false, params, discordgo.WithContext(ctx)); err != nil {
		return classify(fmt.Errorf("execute webhook %s: %w", hook.ID, err), relay.ErrWebhookGone)
	}
	return nil
}

// FetchMessage loads a message by id, used to quote replies.
func (a *Adapter) FetchMessage(ctx context.Context, channelID, messageID string) (relay.Message, error) {
	m, err := a.rest.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return relay.Message{}, fmt.Errorf("fetch message %s: %w", messageID, err)
	}
	return a.convert(ctx, m, false), nil
}

// Reply answers a command message in its channel. Mentions in content do not notify.
func (a *Adapter) Reply(ctx context.Context, m *discordgo.Message, content string) error {
	ref := &discordgo.MessageReference{MessageID: m.ID, ChannelID: m.ChannelID, GuildID: m.GuildID}
	for _, chunk := range splitContent(content, relay.MaxContentLength) {
		data := &discordgo.MessageSend{
			Content:   chunk,
			Reference: ref,
			// replies list users by mention; none of them should be pinged
			AllowedMentions: &discordgo.MessageAllowedMentions{
				Parse: []discordgo.AllowedMentionType{},
			},
		}
		if _, err := a.rest.ChannelMessageSendComplex(m.ChannelID, data, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
	}
	return nil
}

// splitContent breaks content on line boundaries into pieces of at most limit runes.
func splitContent(content string, limit int) []string {
	var (
		chunks []string
		cur    []rune
	)
	for _, line := range strings.Split(content, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			if len(cur) > 0 {
				chunks = append(chunks, string(cur))
				cur = nil
			}
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		switch {
		case len(cur) == 0:
			cur = runes
		case len(cur)+1+len(runes) <= limit:
			cur = append(append(cur, '\n'), runes...)
		default:
			chunks = append(chunks, string(cur))
			cur = runes
		}
	}
	if len(cur) > 0 || len(chunks) == 0 {
		chunks = append(chunks, string(cur))
	}
	return chunks
}

var (
	_ bridge.Platform = (*Adapter)(nil)
	_ relay.Platform  = (*Adapter)(nil)
)
