package bridge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/memohai/bridgebot/internal/db"
)

const nextBridgeIDCounter = "next_bridge_id"

// SQLStore is a Store backed by the bridges, bridge_channels and bridge_counters tables.
type SQLStore struct {
	db *db.DB
}

// NewSQLStore wraps an open, migrated database.
func NewSQLStore(conn *db.DB) *SQLStore {
	return &SQLStore{db: conn}
}

const bridgeColumns = "id, channel_a_id, channel_b_id, webhook_a_url, webhook_b_url, display_name_a, display_name_b, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBridge(row rowScanner) (Bridge, error) {
	var (
		b       Bridge
		created int64
	)
	if err := row.Scan(&b.ID, &b.ChannelA, &b.ChannelB, &b.WebhookA, &b.WebhookB, &b.DisplayNameA, &b.DisplayNameB, &created); err != nil {
		return Bridge{}, err
	}
	b.CreatedAt = time.Unix(created, 0).UTC()
	return b, nil
}

func (s *SQLStore) List(ctx context.Context) ([]Bridge, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+bridgeColumns+" FROM bridges ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list bridges: %w", err)
	}
	defer rows.Close()
	items := make([]Bridge, 0)
	for rows.Next() {
		b, err := scanBridge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bridge: %w", err)
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (s *SQLStore) Get(ctx context.Context, id int64) (Bridge, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+bridgeColumns+" FROM bridges WHERE id = ?"), id)
	b, err := scanBridge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bridge{}, ErrNotFound
		}
		return Bridge{}, fmt.Errorf("get bridge: %w", err)
	}
	return b, nil
}

func (s *SQLStore) Insert(ctx context.Context, nb NewBridge) (Bridge, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Bridge{}, fmt.Errorf("begin insert bridge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		s.db.Rebind("UPDATE bridge_counters SET value = value + 1 WHERE name = ? RETURNING value - 1"),
		nextBridgeIDCounter,
	).Scan(&id)
	if err != nil {
		return Bridge{}, fmt.Errorf("allocate bridge id: %w", err)
	}

	created := nb.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		s.db.Rebind("INSERT INTO bridges ("+bridgeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		id, nb.ChannelA, nb.ChannelB, nb.WebhookA, nb.WebhookB, nb.DisplayNameA, nb.DisplayNameB, created.Unix(),
	)
	if err != nil {
		return Bridge{}, fmt.Errorf("insert bridge: %w", err)
	}
	for _, entry := range []struct {
		channel string
		side    Side
	}{{nb.ChannelA, SideA}, {nb.ChannelB, SideB}} {
		_, err = tx.ExecContext(ctx,
			s.db.Rebind("INSERT INTO bridge_channels (channel_id, bridge_id, side) VALUES (?, ?, ?)"),
			entry.channel, id, string(entry.side),
		)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return Bridge{}, ErrAlreadyBridged
			}
			return Bridge{}, fmt.Errorf("insert bridge channel: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Bridge{}, fmt.Errorf("commit bridge: %w", err)
	}
	return Bridge{
		ID:           id,
		ChannelA:     nb.ChannelA,
		ChannelB:     nb.ChannelB,
		WebhookA:     nb.WebhookA,
		WebhookB:     nb.WebhookB,
		DisplayNameA: nb.DisplayNameA,
		DisplayNameB: nb.DisplayNameB,
		CreatedAt:    time.Unix(created.Unix(), 0).UTC(),
	}, nil
}

func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete bridge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.db.Rebind("DELETE FROM bridge_channels WHERE bridge_id = ?"), id); err != nil {
		return fmt.Errorf("delete bridge channels: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.db.Rebind("DELETE FROM bridges WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete bridge: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear bridges: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM bridge_channels"); err != nil {
		return fmt.Errorf("clear bridge channels: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM bridges"); err != nil {
		return fmt.Errorf("clear bridges: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) UpdateNames(ctx context.Context, id int64, nameA, nameB string) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE bridges SET display_name_a = ?, display_name_b = ? WHERE id = ?"),
		nameA, nameB, id,
	)
	if err != nil {
		return fmt.Errorf("update bridge names: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLStore) UpdateWebhook(ctx context.Context, id int64, side Side, webhookURL string) error {
	column := "webhook_a_url"
	if side == SideB {
		column = "webhook_b_url"
	}
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE bridges SET "+column+" = ? WHERE id = ?"),
		webhookURL, id,
	)
	if err != nil {
		return fmt.Errorf("update bridge webhook: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
