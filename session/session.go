// Package session persists the signed-in user's bearer token and profile picture URL.
//
// The Store interface is the only storage contract; the sqlite, redis, mongo and postgres
// backends live in their own packages. A Manager built on a Store is handed to every view-model
// so no screen reads ambient storage on its own.
package session

import (
	"context"
	"errors"
	"fmt"
)

type Key string

const (
	KeyAccessToken       Key = "accessToken"
	KeyTokenType         Key = "tokenType"
	KeyProfilePictureURL Key = "profilePictureUrl"
)

// Keys lists every key a Store accepts.
var Keys = []Key{KeyAccessToken, KeyTokenType, KeyProfilePictureURL}

var (
	ErrMissingToken = errors.New("access token is missing, please sign in again")
	ErrUnknownKey   = errors.New("unknown session key")
)

// Store is a persistent key/value store scoped to Keys.
// A missing key is reported with ok == false, never as an error.
type Store interface {
	Get(ctx context.Context, key Key) (value string, ok bool, err error)
	Set(ctx context.Context, key Key, value string) error
}

func (k Key) Valid() bool {
	for _, v := range Keys {
		if k == v {
			return true
		}
	}
	return false
}

// CheckKey returns ErrUnknownKey wrapped with the key name when k is not one of Keys.
func CheckKey(k Key) error {
	if !k.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKey, string(k))
	}
	return nil
}

type Session struct {
	Token             string
	TokenType         string
	ProfilePictureURL string
}

// Authorization returns the header value for protected endpoints.
func (s Session) Authorization() string {
	return "Bearer " + s.Token
}

type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Current loads the stored session. ErrMissingToken is returned when no non-empty token exists.
func (m *Manager) Current(ctx context.Context) (Session, error) {
	token, ok, err := m.store.Get(ctx, KeyAccessToken)
	if err != nil {
		return Session{}, fmt.Errorf("read %s: %w", KeyAccessToken, err)
	}
	if !ok || token == "" {
		return Session{}, ErrMissingToken
	}

	s := Session{Token: token}
	if s.TokenType, _, err = m.store.Get(ctx, KeyTokenType); err != nil {
		return Session{}, fmt.Errorf("read %s: %w", KeyTokenType, err)
	}
	if s.ProfilePictureURL, _, err = m.store.Get(ctx, KeyProfilePictureURL); err != nil {
		return Session{}, fmt.Errorf("read %s: %w", KeyProfilePictureURL, err)
	}
	return s, nil
}

func (m *Manager) ProfilePictureURL(ctx context.Context) (string, error) {
	v, _, err := m.store.Get(ctx, KeyProfilePictureURL)
	return v, err
}

// Save writes the non-empty values; empty ones leave the stored value untouched.
func (m *Manager) Save(ctx context.Context, s Session) error {
	for _, kv := range []struct {
		key   Key
		value string
	}{
		{KeyAccessToken, s.Token},
		{KeyTokenType, s.TokenType},
		{KeyProfilePictureURL, s.ProfilePictureURL},
	} {
		if kv.value == "" {
			continue
		}
		if err := m.store.Set(ctx, kv.key, kv.value); err != nil {
			return fmt.Errorf("write %s: %w", kv.key, err)
		}
	}
	return nil
}
