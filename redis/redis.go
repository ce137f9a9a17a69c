package redis

import (
	"context"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"github.com/troydota/client.vote.komodohype.dev/session"
)

const keyPrefix = "session:"

const ErrNil = redis.Nil

// Store keeps the session under session:<key> without expiry.
type Store struct {
	Client *redis.Client
}

func New(ctx context.Context, uri string) (*Store, error) {
	options, err := redis.ParseURL(uri)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(options)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	log.WithField("component", "session").Debugf("redis session store at %s", options.Addr)

	return &Store{Client: client}, nil
}

func (s *Store) Get(ctx context.Context, key session.Key) (string, bool, error) {
	if err := session.CheckKey(key); err != nil {
		return "", false, err
	}
	val, err := s.Client.Get(ctx, keyPrefix+string(key)).Result()
	if err == ErrNil {
		return "", false, nil
	}
	if err != nil {
		log.Errorf("redis, err=%v", err)
		return "", false, err
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key session.Key, value string) error {
	if err := session.CheckKey(key); err != nil {
		return err
	}
	if err := s.Client.Set(ctx, keyPrefix+string(key), value, 0).Err(); err != nil {
		log.Errorf("redis, err=%v", err)
		return err
	}
	return nil
}

func (s *Store) Close() error {
	return s.Client.Close()
}
