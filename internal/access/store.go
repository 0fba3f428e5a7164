package access

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/memohai/bridgebot/internal/db"
)

// MemoryStore keeps operators in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	operators map[string]Operator
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{operators: map[string]Operator{}}
}

func (s *MemoryStore) ListOperators(_ context.Context) ([]Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Operator, 0, len(s.operators))
	for _, op := range s.operators {
		items = append(items, op)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].UserID < items[j].UserID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) HasOperator(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.operators[userID]
	return ok, nil
}

func (s *MemoryStore) AddOperator(_ context.Context, op Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operators[op.UserID]; !ok {
		s.operators[op.UserID] = op
	}
	return nil
}

func (s *MemoryStore) RemoveOperator(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.operators, userID)
	return nil
}

// SQLStore persists operators in the bridge_operators table.
type SQLStore struct {
	db *db.DB
}

func NewSQLStore(conn *db.DB) *SQLStore {
	return &SQLStore{db: conn}
}

func (s *SQLStore) ListOperators(ctx context.Context) ([]Operator, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id, added_by, created_at FROM bridge_operators ORDER BY created_at, user_id")
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	defer rows.Close()
	items := make([]Operator, 0)
	for rows.Next() {
		var (
			op      Operator
			created int64
		)
		if err := rows.Scan(&op.UserID, &op.AddedBy, &created); err != nil {
			return nil, fmt.Errorf("scan operator: %w", err)
		}
		op.CreatedAt = time.Unix(created, 0).UTC()
		items = append(items, op)
	}
	return items, rows.Err()
}

func (s *SQLStore) HasOperator(ctx context.Context, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT COUNT(*) FROM bridge_operators WHERE user_id = ?"), userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup operator: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) AddOperator(ctx context.Context, op Operator) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind("INSERT INTO bridge_operators (user_id, added_by, created_at) VALUES (?, ?, ?) ON CONFLICT (user_id) DO NOTHING"),
		op.UserID, op.AddedBy, op.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("add operator: %w", err)
	}
	return nil
}

func (s *SQLStore) RemoveOperator(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM bridge_operators WHERE user_id = ?"), userID); err != nil {
		return fmt.Errorf("remove operator: %w", err)
	}
	return nil
}
