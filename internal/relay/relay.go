package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/memohai/bridgebot/internal/bridge"
)

// Outcome describes what Handle did with a message.
type Outcome int

const (
	Ignored Outcome = iota
	NoBridge
	DestinationMissing
	NoWebhook
	DeliveryFailed
	Relayed
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case NoBridge:
		return "no_bridge"
	case DestinationMissing:
		return "destination_missing"
	case NoWebhook:
		return "no_webhook"
	case DeliveryFailed:
		return "delivery_failed"
	case Relayed:
		return "relayed"
	default:
		return "unknown"
	}
}

// Options tunes relay behavior.
type Options struct {
	// RelayBots forwards messages from bot accounts too. Messages posted through a
	// bridge webhook are never forwarded.
	RelayBots bool
}

// Relay forwards messages across bridges.
type Relay struct {
	bridges  Bridges
	platform Platform
	opts     Options
	logger   *slog.Logger
}

// New creates a relay.
func New(log *slog.Logger, bridges Bridges, platform Platform, opts Options) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		bridges:  bridges,
		platform: platform,
		opts:     opts,
		logger:   log.With(slog.String("service", "relay")),
	}
}

// Handle relays one inbound message. Failures are logged and reported through the
// returned Outcome; they never propagate.
func (r *Relay) Handle(ctx context.Context, msg Message) Outcome {
	if r.skip(msg) {
		return Ignored
	}
	b, side, ok := r.bridges.Lookup(msg.ChannelID)
	if !ok {
		return NoBridge
	}
	dest := side.Other()
	log := r.logger.With(
		slog.String("relay_id", uuid.NewString()),
		slog.Int64("bridge_id", b.ID),
		slog.String("channel_id", msg.ChannelID),
	)

	destChannel := b.Channel(dest)
	if _, err := r.platform.Channel(ctx, destChannel); err != nil {
		log.Debug("destination unavailable", slog.String("destination", destChannel), slog.String("display_name", b.DisplayName(dest)), slog.Any("error", err))
		return DestinationMissing
	}
	hook, ok := r.bridges.Webhook(b.ID, dest)
	if !ok || !hook.Valid() {
		log.Warn("no webhook for destination", slog.String("side", string(dest)))
		return NoWebhook
	}

	community := msg.GuildName
	if community == "" {
		community = b.DisplayName(side)
	}
	post := Post{
		Content:   Render(msg, r.quoted(ctx, log, msg), community),
		Username:  WebhookUsername(msg.Author.DisplayName),
		AvatarURL: msg.Author.AvatarURL,
	}
	if err := r.platform.ExecuteWebhook(ctx, hook, post); err != nil {
		if errors.Is(err, ErrWebhookGone) {
			r.bridges.EvictWebhook(b.ID, dest)
		}
		log.Warn("relay delivery failed", slog.Any("error", err))
		return DeliveryFailed
	}
	log.Debug("message relayed", slog.String("destination", destChannel))
	return Relayed
}

func (r *Relay) skip(msg Message) bool {
	if msg.WebhookID != "" && r.bridges.IsRelayWebhook(msg.WebhookID) {
		return true
	}
	if msg.Author.Bot && !r.opts.RelayBots {
		return true
	}
	return msg.IsEmpty()
}

// quoted resolves the replied-to message, preferring the copy carried by the event.
func (r *Relay) quoted(ctx context.Context, log *slog.Logger, msg Message) *Quote {
	ref := msg.Quoted
	if ref == nil {
		if msg.Reply == nil || msg.Reply.MessageID == "" {
			return nil
		}
		channelID := msg.Reply.ChannelID
		if channelID == "" {
			channelID = msg.ChannelID
		}
		fetched, err := r.platform.FetchMessage(ctx, channelID, msg.Reply.MessageID)
		if err != nil {
			log.Warn("reply fetch failed", slog.String("message_id", msg.Reply.MessageID), slog.Any("error", err))
			return nil
		}
		ref = &fetched
	}
	return &Quote{
		Message: *ref,
		Relayed: ref.WebhookID != "" && r.bridges.IsRelayWebhook(ref.WebhookID),
	}
}

var _ Bridges = (*bridge.Registry)(nil)
