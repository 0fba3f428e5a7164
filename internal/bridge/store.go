package bridge

import (
	"context"
	"sort"
	"sync"
)

// Store persists bridge records and the monotonic id counter.
type Store interface {
	// List returns all bridges ordered by id.
	List(ctx context.Context) ([]Bridge, error)
	// Get returns ErrNotFound when id is unknown.
	Get(ctx context.Context, id int64) (Bridge, error)
	// Insert assigns the next id and persists the bridge. It returns ErrAlreadyBridged when
	// either channel already belongs to a bridge.
	Insert(ctx context.Context, nb NewBridge) (Bridge, error)
	// Delete returns ErrNotFound when id is unknown.
	Delete(ctx context.Context, id int64) error
	// Clear removes every bridge. The id counter is kept.
	Clear(ctx context.Context) error
	UpdateNames(ctx context.Context, id int64, nameA, nameB string) error
	UpdateWebhook(ctx context.Context, id int64, side Side, webhookURL string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	bridges map[int64]Bridge
}

// NewMemoryStore creates an empty MemoryStore whose first id is 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, bridges: map[int64]Bridge{}}
}

func (s *MemoryStore) List(_ context.Context) ([]Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Bridge, 0, len(s.bridges))
	for _, b := range s.bridges {
		items = append(items, b)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bridges[id]
	if !ok {
		return Bridge{}, ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) Insert(_ context.Context, nb NewBridge) (Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bridges {
		if b.Touches(nb.ChannelA, nb.ChannelB) {
			return Bridge{}, ErrAlreadyBridged
		}
	}
	b := Bridge{
		ID:           s.nextID,
		ChannelA:     nb.ChannelA,
		ChannelB:     nb.ChannelB,
		WebhookA:     nb.WebhookA,
		WebhookB:     nb.WebhookB,
		DisplayNameA: nb.DisplayNameA,
		DisplayNameB: nb.DisplayNameB,
		CreatedAt:    nb.CreatedAt,
	}
	s.bridges[b.ID] = b
	s.nextID++
	return b, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bridges[id]; !ok {
		return ErrNotFound
	}
	delete(s.bridges, id)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bridges = map[int64]Bridge{}
	return nil
}

func (s *MemoryStore) UpdateNames(_ context.Context, id int64, nameA, nameB string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bridges[id]
	if !ok {
		return ErrNotFound
	}
	b.DisplayNameA, b.DisplayNameB = nameA, nameB
	s.bridges[id] = b
	return nil
}

func (s *MemoryStore) UpdateWebhook(_ context.Context, id int64, side Side, webhookURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bridges[id]
	if !ok {
		return ErrNotFound
	}
	if side == SideB {
		b.WebhookB = webhookURL
	} else {
		b.WebhookA = webhookURL
	}
	s.bridges[id] = b
	return nil
}
