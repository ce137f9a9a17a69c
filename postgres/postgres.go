// Package postgres keeps the session in a shared PostgreSQL table, for gateways that run
// behind more than one process.
package postgres

import (
	"context"

	"github.com/jackc/pgx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/troydota/client.vote.komodohype.dev/session"
)

const schema = `CREATE TABLE IF NOT EXISTS session_kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

type Store struct {
	db *pgx.ConnPool
}

// New connects to uri, a postgres:// URL or a key=value DSN, and creates the table.
func New(ctx context.Context, uri string) (*Store, error) {
	cc, err := pgx.ParseConnectionString(uri)
	if err != nil {
		return nil, errors.Wrap(err, "postgres uri")
	}
	db, err := pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:     cc,
		MaxConnections: 4,
	})
	if err != nil {
		return nil, errors.Wrap(err, "postgres connect")
	}
	if _, err = db.ExecEx(ctx, schema, nil); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "postgres schema")
	}
	log.WithField("component", "session").Debugf("postgres session store at %s:%d", cc.Host, cc.Port)
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key session.Key) (string, bool, error) {
	if err := session.CheckKey(key); err != nil {
		return "", false, err
	}
	var value string
	err := s.db.QueryRowEx(ctx, `SELECT value FROM session_kv WHERE key = $1`, nil, string(key)).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get %s", key)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key session.Key, value string) error {
	if err := session.CheckKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecEx(ctx,
		`INSERT INTO session_kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		nil, string(key), value)
	return errors.Wrapf(err, "set %s", key)
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}
