// Package ragcache is a Redis-backed answer cache for the RAG Service
// (C11): repeated questions over an unchanged supporting-information set
// are served without a second round trip through C1 search and C12
// completion.
package ragcache

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/config"
)

// Cache caches one AskResponse-shaped payload per question key. Built as a
// concrete type (not an interface) since rag.Processor's Cache field is
// optional and nil-safe, matching the teacher's nil-receiver cache pattern.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New builds a Cache when cfg.Enabled; returns (nil, nil) otherwise so
// callers can wire it unconditionally without a feature-flag branch at
// every call site.
func New(cfg config.RedisConfig, ttlSeconds int) (*Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opts := &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ragcache: ping: %w", err)
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Key derives a stable cache key from the question shape: type, question
// text, and the supporting-information set (order-independent, so
// ["123","456"] and ["456","123"] hit the same entry).
func Key(questionType, question string, supportingInfo []string) string {
	sorted := append([]string(nil), supportingInfo...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(questionType))
	h.Write([]byte{0})
	h.Write([]byte(question))
	for _, s := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	return "rag:ask:" + hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached value and true on a hit; false on a miss, an error,
// or a nil Cache.
func (c *Cache) Get(ctx context.Context, key string, out any) bool {
	if c == nil || c.client == nil {
		return false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("ragcache: get failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("ragcache: unmarshal failed")
		return false
	}
	return true
}

// Set stores value under key with the configured TTL. Errors are logged,
// never propagated — a cache write failure must not fail the request it
// was serving.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("ragcache: marshal failed")
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("ragcache: set failed")
	}
}

// Close releases the underlying Redis connection, if any.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
