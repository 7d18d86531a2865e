package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CSRF states are single-use and short-lived; an abandoned authorize attempt
// must not linger as a forgeable callback forever.
const stateTTL = 10 * time.Minute

// AuthState binds one authorize call to its callback.
type AuthState struct {
	UserID      int       `json:"user_id"`
	Provider    string    `json:"provider"`
	RedirectURI string    `json:"redirect_uri"`
	CreatedAt   time.Time `json:"created_at"`
}

// StateStore persists pending authorization states.
type StateStore interface {
	Put(ctx context.Context, state string, st AuthState) error
	// Take returns and deletes the state in one step; nil when absent.
	Take(ctx context.Context, state string) (*AuthState, error)
}

type RedisStateStore struct {
	rdb *redis.Client
}

func NewRedisStateStore(rdb *redis.Client) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

func stateKey(state string) string {
	return "oauthstate:" + state
}

func (s *RedisStateStore) Put(ctx context.Context, state string, st AuthState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, stateKey(state), raw, stateTTL).Err()
}

func (s *RedisStateStore) Take(ctx context.Context, state string) (*AuthState, error) {
	raw, err := s.rdb.GetDel(ctx, stateKey(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load auth state: %w", err)
	}

	var st AuthState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode auth state: %w", err)
	}
	return &st, nil
}
