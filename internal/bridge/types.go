// Package bridge owns the registry of channel bridges, their persisted records and the
// process-local cache of webhook handles used to post into each bridged channel.
package bridge

import (
	"context"
	"errors"
	"time"
)

// Errors returned by the registry and stores.
var (
	ErrInvalidChannel   = errors.New("channel id is required")
	ErrSelfBridge       = errors.New("cannot bridge a channel with itself")
	ErrAlreadyBridged   = errors.New("channel is already bridged")
	ErrNotFound         = errors.New("bridge not found")
	ErrWebhookProvision = errors.New("webhook provisioning failed")
	// ErrChannelNotFound is returned by a Directory when a channel cannot be resolved.
	ErrChannelNotFound = errors.New("channel not found")
)

// Side identifies one end of a bridge.
type Side string

const (
	SideA Side = "a"
	SideB Side = "b"
)

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// Valid reports whether s is SideA or SideB.
func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

// Bridge is one relay link between exactly two channels.
type Bridge struct {
	ID           int64     `json:"id"`
	ChannelA     string    `json:"channel_a_id"`
	ChannelB     string    `json:"channel_b_id"`
	WebhookA     string    `json:"-"`
	WebhookB     string    `json:"-"`
	DisplayNameA string    `json:"display_name_a"`
	DisplayNameB string    `json:"display_name_b"`
	CreatedAt    time.Time `json:"created_at"`
}

// Channel returns the channel id on the given side.
func (b Bridge) Channel(side Side) string {
	if side == SideB {
		return b.ChannelB
	}
	return b.ChannelA
}

// DisplayName returns the stored label for the given side.
func (b Bridge) DisplayName(side Side) string {
	if side == SideB {
		return b.DisplayNameB
	}
	return b.DisplayNameA
}

// WebhookURL returns the persisted webhook url for the given side.
func (b Bridge) WebhookURL(side Side) string {
	if side == SideB {
		return b.WebhookB
	}
	return b.WebhookA
}

// SideOf reports which side channelID is on.
func (b Bridge) SideOf(channelID string) (Side, bool) {
	switch channelID {
	case b.ChannelA:
		return SideA, true
	case b.ChannelB:
		return SideB, true
	}
	return "", false
}

// Touches reports whether the bridge includes any of the given channels.
func (b Bridge) Touches(channelIDs ...string) bool {
	for _, id := range channelIDs {
		if _, ok := b.SideOf(id); ok {
			return true
		}
	}
	return false
}

// NewBridge is the input for Store.Insert; the store assigns the id.
type NewBridge struct {
	ChannelA     string
	ChannelB     string
	WebhookA     string
	WebhookB     string
	DisplayNameA string
	DisplayNameB string
	CreatedAt    time.Time
}

// ChannelInfo describes a resolved channel.
type ChannelInfo struct {
	ID        string
	Name      string
	GuildID   string
	GuildName string
}

// Label renders the channel as "#name (Guild)".
func (c ChannelInfo) Label() string {
	label := "#" + c.Name
	if c.Name == "" {
		label = c.ID
	}
	if c.GuildName != "" {
		label += " (" + c.GuildName + ")"
	}
	return label
}

// Directory resolves channels. Implementations return ErrChannelNotFound (possibly wrapped)
// when the channel does not exist or the bot cannot see it.
type Directory interface {
	Channel(ctx context.Context, channelID string) (ChannelInfo, error)
}

// WebhookProvisioner returns a webhook with the given name in a channel, creating it when
// none exists.
type WebhookProvisioner interface {
	EnsureWebhook(ctx context.Context, channelID, name string) (Webhook, error)
}

// Platform is the subset of the messaging platform the registry depends on.
type Platform interface {
	Directory
	WebhookProvisioner
}
