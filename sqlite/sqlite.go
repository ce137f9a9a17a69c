// Package sqlite is the default session backend: a single key/value table in a local file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	"github.com/troydota/client.vote.komodohype.dev/session"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the session database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer keeps the file free of SQLITE_BUSY under concurrent Set calls
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.WithField("component", "session").Debugf("sqlite session store at %s", path)
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key session.Key) (string, bool, error) {
	if err := session.CheckKey(key); err != nil {
		return "", false, err
	}
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, string(key))
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key session.Key, value string) error {
	if err := session.CheckKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		string(key), value)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
