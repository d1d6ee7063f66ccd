package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"yield-vault/internal/state"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

var (
	_ state.Store    = (*Store)(nil)
	_ state.EventLog = (*Store)(nil)
)

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return err
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		payload BLOB NOT NULL
	)`)
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *Store) AppendEvent(ctx context.Context, event state.StoredEvent) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO events (seq, id, kind, payload) VALUES (?, ?, ?, ?)`,
		int64(event.Seq), event.ID, event.Kind, event.Payload)
	return err
}

func (s *Store) ListEvents(ctx context.Context, limit int) ([]state.StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, id, kind, payload FROM (
		SELECT seq, id, kind, payload FROM events ORDER BY seq DESC LIMIT ?
	) ORDER BY seq ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []state.StoredEvent
	for rows.Next() {
		var (
			seq   int64
			event state.StoredEvent
		)
		if err := rows.Scan(&seq, &event.ID, &event.Kind, &event.Payload); err != nil {
			return nil, err
		}
		event.Seq = uint64(seq)
		out = append(out, event)
	}
	return out, rows.Err()
}

func (s *Store) LastSequence(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
