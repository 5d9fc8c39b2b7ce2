// Package redis stores OAuth handshake state in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
)

const (
	requestSecretPrefix = "oauth:twitter:request:"
	statePrefix         = "oauth:line:state:"
)

// StateStore implements repository.OAuthStateStore. Every value expires
// after ttl and is removed on first read.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStateStore creates a StateStore.
func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

// SaveRequestSecret stores the request token secret until the callback
// arrives.
func (s *StateStore) SaveRequestSecret(ctx context.Context, requestToken, secret string) error {
	if err := s.client.Set(ctx, requestSecretPrefix+requestToken, secret, s.ttl).Err(); err != nil {
		return fmt.Errorf("save oauth request secret: %w", err)
	}
	return nil
}

// TakeRequestSecret returns the secret and deletes it in one step, so a
// request token is exchanged at most once.
func (s *StateStore) TakeRequestSecret(ctx context.Context, requestToken string) (string, error) {
	secret, err := s.client.GetDel(ctx, requestSecretPrefix+requestToken).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.Gone("oauth request token is unknown or expired")
	}
	if err != nil {
		return "", fmt.Errorf("take oauth request secret: %w", err)
	}
	return secret, nil
}

// SaveState stores an authorization state value.
func (s *StateStore) SaveState(ctx context.Context, state string) error {
	if err := s.client.Set(ctx, statePrefix+state, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

// ConsumeState deletes the state value, failing if it was not there.
func (s *StateStore) ConsumeState(ctx context.Context, state string) error {
	n, err := s.client.Del(ctx, statePrefix+state).Result()
	if err != nil {
		return fmt.Errorf("consume oauth state: %w", err)
	}
	if n == 0 {
		return apperrors.Gone("oauth state is unknown, expired or already used")
	}
	return nil
}
