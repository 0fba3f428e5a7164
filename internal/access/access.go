// Package access decides who may manage bridges: configured owners are always
// authorized, other users need to be authorized by an owner.
package access

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

var (
	ErrOwnerOnly              = errors.New("only an owner can manage authorized users")
	ErrCannotDeauthorizeOwner = errors.New("owners cannot be deauthorized")
	ErrInvalidUser            = errors.New("user id is required")
)

// Operator is a stored authorized user.
type Operator struct {
	UserID    string    `json:"user_id"`
	AddedBy   string    `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists operators.
type Store interface {
	ListOperators(ctx context.Context) ([]Operator, error)
	HasOperator(ctx context.Context, userID string) (bool, error)
	// AddOperator is a no-op when the user is already stored.
	AddOperator(ctx context.Context, op Operator) error
	// RemoveOperator is a no-op when the user is not stored.
	RemoveOperator(ctx context.Context, userID string) error
}

// Service decides who may manage bridges: configured owners plus stored operators.
type Service struct {
	owners map[string]struct{}
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an access service. Blank owner ids are ignored.
func NewService(log *slog.Logger, store Store, owners []string) *Service {
	if log == nil {
		log = slog.Default()
	}
	set := make(map[string]struct{}, len(owners))
	for _, id := range owners {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return &Service{
		owners: set,
		store:  store,
		logger: log.With(slog.String("service", "access")),
		now:    time.Now,
	}
}

// IsOwner reports whether userID is a configured owner.
func (s *Service) IsOwner(userID string) bool {
	_, ok := s.owners[strings.TrimSpace(userID)]
	return ok
}

// IsAuthorized reports whether userID may run bridge commands.
func (s *Service) IsAuthorized(ctx context.Context, userID string) (bool, error) {
	if s.IsOwner(userID) {
		return true, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}
	return s.store.HasOperator(ctx, userID)
}

// Authorize stores userID as an operator. Only owners may call it.
func (s *Service) Authorize(ctx context.Context, actorID, userID string) error {
	if !s.IsOwner(actorID) {
		return ErrOwnerOnly
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUser
	}
	if err := s.store.AddOperator(ctx, Operator{UserID: userID, AddedBy: actorID, CreatedAt: s.now()}); err != nil {
		return err
	}
	s.logger.Info("operator authorized", slog.String("user_id", userID), slog.String("actor_id", actorID))
	return nil
}

// Deauthorize removes a stored operator. Owners cannot be deauthorized.
func (s *Service) Deauthorize(ctx context.Context, actorID, userID string) error {
	if !s.IsOwner(actorID) {
		return ErrOwnerOnly
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUser
	}
	if s.IsOwner(userID) {
		return ErrCannotDeauthorizeOwner
	}
	if err := s.store.RemoveOperator(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("operator deauthorized", slog.String("user_id", userID), slog.String("actor_id", actorID))
	return nil
}

// List returns the stored operators; owners are not included.
func (s *Service) List(ctx context.Context) ([]Operator, error) {
	return s.store.ListOperators(ctx)
}
