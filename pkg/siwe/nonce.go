package siwe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

var ErrNonceUnknown = errors.New("nonce unknown, expired or already used")

// NonceStore tracks outstanding nonces. Consume succeeds at most once per nonce.
type NonceStore interface {
	Put(ctx context.Context, nonce string, ttl time.Duration) error
	Consume(ctx context.Context, nonce string) error
}

// NewNonce returns 32 random hex characters
func NewNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// MemoryStore keeps nonces in process, expiring them after their TTL
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStore) Put(_ context.Context, nonce string, ttl time.Duration) error {
	if err := s.cache.Add(nonce, struct{}{}, ttl); err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache.Get(nonce); !ok {
		return ErrNonceUnknown
	}
	s.cache.Delete(nonce)
	return nil
}

// RedisStore shares nonces between server replicas
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "devcamp:siwe:nonce:"}
}

func (s *RedisStore) Put(ctx context.Context, nonce string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, s.prefix+nonce, 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to store nonce: %s already issued", nonce)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, nonce string) error {
	err := s.client.GetDel(ctx, s.prefix+nonce).Err()
	if errors.Is(err, redis.Nil) {
		return ErrNonceUnknown
	}
	if err != nil {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}
	return nil
}

// DialRedis connects and pings, failing fast on a bad address
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}
