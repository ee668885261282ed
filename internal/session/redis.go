package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// RedisStore keeps the session in Redis under the two fixed keys so the
// session survives adapter restarts.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(addr, pass string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStoreFromClient wraps an existing Redis client (used in tests).
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Tokens(ctx context.Context) (model.TokenPair, error) {
	vals, err := s.rdb.MGet(ctx, AccessTokenKey, RefreshTokenKey).Result()
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("session read failed: %w", err)
	}

	var pair model.TokenPair
	if v, ok := vals[0].(string); ok {
		pair.AccessToken = v
	}
	if v, ok := vals[1].(string); ok {
		pair.RefreshToken = v
	}
	if pair.AccessToken == "" && pair.RefreshToken == "" {
		return model.TokenPair{}, ErrNoSession
	}
	return pair, nil
}

func (s *RedisStore) Save(ctx context.Context, pair model.TokenPair) error {
	// Both keys are replaced in one round trip so readers never observe
	// a half-written session.
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, AccessTokenKey, pair.AccessToken, 0)
		pipe.Set(ctx, RefreshTokenKey, pair.RefreshToken, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session save failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, AccessTokenKey, RefreshTokenKey).Err(); err != nil {
		return fmt.Errorf("session clear failed: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
