// Package relay forwards messages posted in a bridged channel onto the webhook of the
// paired channel, rewriting the content so it carries reply context and provenance but
// never a live mention.
package relay

import (
	"context"
	"errors"
	"strings"

	"github.com/memohai/bridgebot/internal/bridge"
)

// ErrWebhookGone is returned by a Platform when the target webhook no longer exists.
var ErrWebhookGone = errors.New("webhook no longer exists")

// Author identifies who posted a message.
type Author struct {
	ID          string
	DisplayName string
	AvatarURL   string
	Bot         bool
}

// Attachment is an uploaded file.
type Attachment struct {
	Filename string
	URL      string
}

// Sticker is a sticker sent with a message.
type Sticker struct {
	Name string
	URL  string
}

// Reference points at the message being replied to.
type Reference struct {
	MessageID string
	ChannelID string
}

// Message is an inbound message event. Optional parts are nil or empty when absent.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	// GuildName is the origin community shown in the footer.
	GuildName string
	// WebhookID is set when the message was posted through a webhook.
	WebhookID string
	Author    Author
	Content   string
	Reply     *Reference
	// Quoted is the referenced message when the event already carries it.
	Quoted      *Message
	Attachments []Attachment
	Stickers    []Sticker
}

// IsEmpty reports whether the message has nothing to relay.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == "" && len(m.Attachments) == 0 && len(m.Stickers) == 0
}

// Post is an outbound webhook execution.
type Post struct {
	Content   string
	Username  string
	AvatarURL string
}

// Platform is what the relay needs from the messaging platform.
type Platform interface {
	bridge.Directory
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, error)
	ExecuteWebhook(ctx context.Context, hook bridge.Webhook, post Post) error
}

// Bridges is the read side of the bridge registry.
type Bridges interface {
	Lookup(channelID string) (bridge.Bridge, bridge.Side, bool)
	Webhook(bridgeID int64, side bridge.Side) (bridge.Webhook, bool)
	IsRelayWebhook(webhookID string) bool
	EvictWebhook(bridgeID int64, side bridge.Side)
}
