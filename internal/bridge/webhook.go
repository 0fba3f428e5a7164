package bridge

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

const webhookURLBase = "https://discord.com/api/webhooks/"

// Webhook is a live handle for posting into a channel.
type Webhook struct {
	ID        string
	Token     string
	ChannelID string
}

// URL renders the webhook endpoint.
func (w Webhook) URL() string {
	return webhookURLBase + w.ID + "/" + w.Token
}

// Valid reports whether the handle can be executed.
func (w Webhook) Valid() bool {
	return w.ID != "" && w.Token != ""
}

// ParseWebhookURL extracts id and token from a webhook endpoint url. Both the
// discord.com and discordapp.com hosts, with or without an api version segment, are accepted.
func ParseWebhookURL(raw string) (Webhook, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Webhook{}, fmt.Errorf("parse webhook url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return Webhook{}, fmt.Errorf("parse webhook url: unsupported scheme %q", u.Scheme)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] != "webhooks" {
			continue
		}
		hook := Webhook{ID: parts[i+1], Token: parts[i+2]}
		if hook.Valid() {
			return hook, nil
		}
	}
	return Webhook{}, fmt.Errorf("parse webhook url: missing id or token")
}

type cacheKey struct {
	bridgeID int64
	side     Side
}

// WebhookCache maps (bridge id, side) to a webhook handle. It is process local and
// rebuilt from persisted urls on start.
type WebhookCache struct {
	mu    sync.RWMutex
	hooks map[cacheKey]Webhook
}

// NewWebhookCache creates an empty cache.
func NewWebhookCache() *WebhookCache {
	return &WebhookCache{hooks: map[cacheKey]Webhook{}}
}

// Get returns the handle for a bridge side.
func (c *WebhookCache) Get(bridgeID int64, side Side) (Webhook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hook, ok := c.hooks[cacheKey{bridgeID, side}]
	return hook, ok
}

// Put stores the handle for a bridge side.
func (c *WebhookCache) Put(bridgeID int64, side Side, hook Webhook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[cacheKey{bridgeID, side}] = hook
}

// Delete removes one side of a bridge.
func (c *WebhookCache) Delete(bridgeID int64, side Side) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hooks, cacheKey{bridgeID, side})
}

// Evict removes both sides of a bridge.
func (c *WebhookCache) Evict(bridgeID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hooks, cacheKey{bridgeID, SideA})
	delete(c.hooks, cacheKey{bridgeID, SideB})
}

// Reset drops every entry.
func (c *WebhookCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = map[cacheKey]Webhook{}
}

// Contains reports whether any cached handle has the given webhook id.
func (c *WebhookCache) Contains(webhookID string) bool {
	if webhookID == "" {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, hook := range c.hooks {
		if hook.ID == webhookID {
			return true
		}
	}
	return false
}

// Len returns the number of cached handles.
func (c *WebhookCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hooks)
}
