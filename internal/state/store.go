package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("stats not found")

// Stats are the delivery counters of one consumer within one session.
type Stats struct {
	SessionID  string    `json:"session_id"`
	ConsumerID string    `json:"consumer_id"`
	Delivered  int64     `json:"delivered"`
	Failed     int64     `json:"failed"`
	Dropped    int64     `json:"dropped"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store persists delivery counters in the delivery_stats table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Add increments the stored counters by each delta in one transaction.
func (s *Store) Add(ctx context.Context, deltas []Stats) error {
	if len(deltas) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, d := range deltas {
		if d.SessionID == "" {
			return fmt.Errorf("stats delta for consumer %q has no session", d.ConsumerID)
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO delivery_stats(session_id, consumer_id, delivered, failed, dropped, updated_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id, consumer_id) DO UPDATE SET
  delivered  = delivered + excluded.delivered,
  failed     = failed + excluded.failed,
  dropped    = dropped + excluded.dropped,
  updated_at = excluded.updated_at;
`, d.SessionID, d.ConsumerID, d.Delivered, d.Failed, d.Dropped, now)
		if err != nil {
			return fmt.Errorf("upsert stats %s/%s: %w", d.SessionID, d.ConsumerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get returns the counters for one consumer.
func (s *Store) Get(ctx context.Context, sessionID, consumerID string) (Stats, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, consumer_id, delivered, failed, dropped, updated_at
FROM delivery_stats WHERE session_id = ? AND consumer_id = ?;`, sessionID, consumerID)
	st, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Stats{}, fmt.Errorf("%w: %s/%s", ErrNotFound, sessionID, consumerID)
	}
	return st, err
}

// List returns every row ordered by session then consumer.
func (s *Store) List(ctx context.Context) ([]Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, consumer_id, delivered, failed, dropped, updated_at
FROM delivery_stats ORDER BY session_id, consumer_id;`)
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	defer rows.Close()

	var out []Stats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStats(row rowScanner) (Stats, error) {
	var (
		st      Stats
		updated string
	)
	if err := row.Scan(&st.SessionID, &st.ConsumerID, &st.Delivered, &st.Failed, &st.Dropped, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Stats{}, err
		}
		return Stats{}, fmt.Errorf("scan stats: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return Stats{}, fmt.Errorf("parse updated_at %q: %w", updated, err)
	}
	st.UpdatedAt = t
	return st, nil
}
