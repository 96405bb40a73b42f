// Package redis stores trained models and recent scoring results in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hed1ad/brminer/pkg/config"
	detio "github.com/hed1ad/brminer/pkg/io"
)

const keyPrefix = "brminer:"

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("redis: not found")

// Store is a go-redis backed model store and result cache.
type Store struct {
	client    *redis.Client
	resultTTL time.Duration
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return &Store{client: rdb, resultTTL: cfg.ResultTTL}, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// SaveModel stores a serialized model under name. Models do not expire.
func (s *Store) SaveModel(ctx context.Context, name string, model []byte) error {
	return s.client.Set(ctx, modelKey(name), model, 0).Err()
}

// LoadModel returns the serialized model stored under name.
func (s *Store) LoadModel(ctx context.Context, name string) ([]byte, error) {
	val, err := s.client.Get(ctx, modelKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("model %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// SaveResult caches a scoring result for the configured TTL.
func (s *Store) SaveResult(ctx context.Context, id string, result detio.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, resultKey(id), data, s.resultTTL).Err()
}

// GetResult returns a cached scoring result.
func (s *Store) GetResult(ctx context.Context, id string) (*detio.Result, error) {
	val, err := s.client.Get(ctx, resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("result %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var result detio.Result
	if err := json.Unmarshal(val, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func modelKey(name string) string {
	return keyPrefix + "model:" + name
}

func resultKey(id string) string {
	return keyPrefix + "result:" + id
}
