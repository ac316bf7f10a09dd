// Package redis persists the pieces of session state worth surviving a
// restart: the trading config and the latest eligibility snapshot.
//
// Redis is optional. A nil *Store no-ops every call, so callers never
// branch on whether persistence is configured. Writes are fire-and-forget
// with a short per-op timeout, and a circuit breaker skips the network
// entirely while the server stays down.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"breakout-trader/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	configKey      = "trading:config"
	eligibilityKey = "trading:eligibility:latest"

	opTimeout = 2 * time.Second
)

// Config locates the Redis server.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Store persists trading state to Redis.
type Store struct {
	client  *goredis.Client
	breaker *CircuitBreaker
}

// New connects and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	breaker := NewCircuitBreaker(5, 30*time.Second)
	breaker.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Store{client: client, breaker: breaker}, nil
}

// SaveConfigJSON persists the trading config document.
func (s *Store) SaveConfigJSON(ctx context.Context, data []byte) error {
	return s.set(ctx, configKey, data)
}

// LoadConfigJSON returns the persisted trading config, or nil when no
// document exists (or no store is configured).
func (s *Store) LoadConfigJSON(ctx context.Context) ([]byte, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	var data []byte
	err := s.breaker.Execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		raw, err := s.client.Get(opCtx, configKey).Bytes()
		if err == goredis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		data = raw
		return nil
	})
	return data, err
}

// SetEligibility mirrors the latest eligibility snapshot.
func (s *Store) SetEligibility(ctx context.Context, res *model.EligibilityResult) error {
	if s == nil || s.client == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal eligibility: %w", err)
	}
	return s.set(ctx, eligibilityKey, data)
}

// Client returns the underlying client for health probes, or nil when no
// store is configured.
func (s *Store) Client() *goredis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) set(ctx context.Context, key string, data []byte) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.breaker.Execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		return s.client.Set(opCtx, key, data, 0).Err()
	})
}
