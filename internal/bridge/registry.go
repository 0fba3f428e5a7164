package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Registry owns the bridge table and the webhook cache. It replaces ambient module
// state: create one per process with NewRegistry and pass it to the components that
// need it.
type Registry struct {
	store       Store
	platform    Platform
	webhookName string
	logger      *slog.Logger
	now         func() time.Time

	// mutateMu serializes create/remove/clear so the check-provision-insert sequence of
	// Create cannot interleave with another operator command.
	mutateMu sync.Mutex

	mu        sync.RWMutex
	byChannel map[string]Bridge
	cache     *WebhookCache
}

// NewRegistry creates a registry. Call Load before serving traffic.
func NewRegistry(log *slog.Logger, store Store, platform Platform, webhookName string) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(webhookName) == "" {
		webhookName = "Bridge"
	}
	return &Registry{
		store:       store,
		platform:    platform,
		webhookName: webhookName,
		logger:      log.With(slog.String("service", "bridge")),
		now:         time.Now,
		byChannel:   map[string]Bridge{},
		cache:       NewWebhookCache(),
	}
}

// Load rebuilds the channel index and the webhook cache from the store.
func (r *Registry) Load(ctx context.Context) error {
	items, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load bridges: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byChannel = make(map[string]Bridge, len(items)*2)
	r.cache.Reset()
	for _, b := range items {
		r.indexLocked(b)
	}
	r.logger.Info("bridges loaded", slog.Int("count", len(items)), slog.Int("webhooks", r.cache.Len()))
	return nil
}

func (r *Registry) indexLocked(b Bridge) {
	r.byChannel[b.ChannelA] = b
	r.byChannel[b.ChannelB] = b
	for _, side := range []Side{SideA, SideB} {
		raw := b.WebhookURL(side)
		if raw == "" {
			continue
		}
		hook, err := ParseWebhookURL(raw)
		if err != nil {
			r.logger.Warn("invalid persisted webhook", slog.Int64("bridge_id", b.ID), slog.String("side", string(side)), slog.Any("error", err))
			continue
		}
		hook.ChannelID = b.Channel(side)
		r.cache.Put(b.ID, side, hook)
	}
}

func (r *Registry) unindexLocked(b Bridge) {
	if cur, ok := r.byChannel[b.ChannelA]; ok && cur.ID == b.ID {
		delete(r.byChannel, b.ChannelA)
	}
	if cur, ok := r.byChannel[b.ChannelB]; ok && cur.ID == b.ID {
		delete(r.byChannel, b.ChannelB)
	}
	r.cache.Evict(b.ID)
}

// Create registers a bridge between two distinct, unbridged channels and provisions a
// webhook in each. Nothing is persisted when either webhook cannot be provisioned.
func (r *Registry) Create(ctx context.Context, channelA, channelB string) (Bridge, error) {
	channelA = strings.TrimSpace(channelA)
	channelB = strings.TrimSpace(channelB)
	if channelA == "" || channelB == "" {
		return Bridge{}, ErrInvalidChannel
	}
	if channelA == channelB {
		return Bridge{}, ErrSelfBridge
	}

	r.mutateMu.Lock()
	defer r.mutateMu.Unlock()

	existing, err := r.store.List(ctx)
	if err != nil {
		return Bridge{}, fmt.Errorf("list bridges: %w", err)
	}
	for _, b := range existing {
		if b.Touches(channelA, channelB) {
			return Bridge{}, ErrAlreadyBridged
		}
	}

	infoA, err := r.platform.Channel(ctx, channelA)
	if err != nil {
		return Bridge{}, fmt.Errorf("resolve channel %s: %w", channelA, err)
	}
	infoB, err := r.platform.Channel(ctx, channelB)
	if err != nil {
		return Bridge{}, fmt.Errorf("resolve channel %s: %w", channelB, err)
	}

	hookA, err := r.provision(ctx, channelA)
	if err != nil {
		return Bridge{}, err
	}
	hookB, err := r.provision(ctx, channelB)
	if err != nil {
		return Bridge{}, err
	}

	b, err := r.store.Insert(ctx, NewBridge{
		ChannelA:     channelA,
		ChannelB:     channelB,
		WebhookA:     hookA.URL(),
		WebhookB:     hookB.URL(),
		DisplayNameA: infoA.Label(),
		DisplayNameB: infoB.Label(),
		CreatedAt:    r.now(),
	})
	if err != nil {
		return Bridge{}, err
	}

	r.mu.Lock()
	r.indexLocked(b)
	r.mu.Unlock()

	r.logger.Info("bridge created",
		slog.Int64("bridge_id", b.ID),
		slog.String("channel_a", channelA),
		slog.String("channel_b", channelB),
	)
	return b, nil
}

func (r *Registry) provision(ctx context.Context, channelID string) (Webhook, error) {
	hook, err := r.platform.EnsureWebhook(ctx, channelID, r.webhookName)
	if err != nil {
		r.logger.Error("webhook provisioning failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return Webhook{}, fmt.Errorf("%w in channel %s: %w", ErrWebhookProvision, channelID, err)
	}
	if !hook.Valid() {
		return Webhook{}, fmt.Errorf("%w in channel %s: webhook has no token", ErrWebhookProvision, channelID)
	}
	hook.ChannelID = channelID
	return hook, nil
}

// Remove deletes a bridge and evicts its cached webhooks. The webhooks themselves are
// left in their channels.
func (r *Registry) Remove(ctx context.Context, id int64) (Bridge, error) {
	r.mutateMu.Lock()
	defer r.mutateMu.Unlock()

	b, err := r.store.Get(ctx, id)
	if err != nil {
		return Bridge{}, err
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return Bridge{}, err
	}

	r.mu.Lock()
	r.unindexLocked(b)
	r.mu.Unlock()

	r.logger.Info("bridge removed", slog.Int64("bridge_id", id))
	return b, nil
}

// List returns all bridges in registration order.
func (r *Registry) List(ctx context.Context) ([]Bridge, error) {
	return r.store.List(ctx)
}

// Clear removes every bridge and empties the cache.
func (r *Registry) Clear(ctx context.Context) error {
	r.mutateMu.Lock()
	defer r.mutateMu.Unlock()

	if err := r.store.Clear(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	r.byChannel = map[string]Bridge{}
	r.cache.Reset()
	r.mu.Unlock()

	r.logger.Info("bridges cleared")
	return nil
}

// Lookup returns the bridge containing channelID and the side it is on.
func (r *Registry) Lookup(channelID string) (Bridge, Side, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byChannel[channelID]
	if !ok {
		return Bridge{}, "", false
	}
	side, ok := b.SideOf(channelID)
	return b, side, ok
}

// Webhook returns the cached webhook for a bridge side.
func (r *Registry) Webhook(bridgeID int64, side Side) (Webhook, bool) {
	return r.cache.Get(bridgeID, side)
}

// EvictWebhook drops the cached webhook of one bridge side, e.g. after it was deleted
// from its channel. The audit job provisions a replacement.
func (r *Registry) EvictWebhook(bridgeID int64, side Side) {
	r.cache.Delete(bridgeID, side)
	r.logger.Warn("webhook evicted", slog.Int64("bridge_id", bridgeID), slog.String("side", string(side)))
}

// IsRelayWebhook reports whether webhookID is one of the bridge webhooks.
func (r *Registry) IsRelayWebhook(webhookID string) bool {
	return r.cache.Contains(webhookID)
}

// RefreshNames persists new display labels for a bridge.
func (r *Registry) RefreshNames(ctx context.Context, id int64, nameA, nameB string) error {
	r.mutateMu.Lock()
	defer r.mutateMu.Unlock()

	if err := r.store.UpdateNames(ctx, id, nameA, nameB); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byChannel[r.channelOfLocked(id)]; ok {
		b.DisplayNameA, b.DisplayNameB = nameA, nameB
		r.byChannel[b.ChannelA] = b
		r.byChannel[b.ChannelB] = b
	}
	return nil
}

// ReprovisionWebhook ensures a webhook in the channel on the given side, persists its url
// and replaces the cache entry.
func (r *Registry) ReprovisionWebhook(ctx context.Context, id int64, side Side) (Webhook, error) {
	if !side.Valid() {
		return Webhook{}, fmt.Errorf("invalid side %q", side)
	}
	r.mutateMu.Lock()
	defer r.mutateMu.Unlock()

	b, err := r.store.Get(ctx, id)
	if err != nil {
		return Webhook{}, err
	}
	hook, err := r.provision(ctx, b.Channel(side))
	if err != nil {
		return Webhook{}, err
	}
	if err := r.store.UpdateWebhook(ctx, id, side, hook.URL()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Webhook{}, err
		}
		return Webhook{}, fmt.Errorf("persist webhook: %w", err)
	}
	if side == SideB {
		b.WebhookB = hook.URL()
	} else {
		b.WebhookA = hook.URL()
	}

	r.mu.Lock()
	r.byChannel[b.ChannelA] = b
	r.byChannel[b.ChannelB] = b
	r.cache.Put(id, side, hook)
	r.mu.Unlock()
	return hook, nil
}

func (r *Registry) channelOfLocked(id int64) string {
	for channelID, b := range r.byChannel {
		if b.ID == id {
			return channelID
		}
	}
	return ""
}
