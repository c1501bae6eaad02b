package coursequiz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// VectorCache remembers embeddings by content key so that rebuilding an
// index over unchanged chunks does not call the provider again. Caches are
// best effort: callers treat errors as misses.
type VectorCache interface {
	GetVectors(ctx context.Context, keys []string) (map[string][]float32, error)
	PutVectors(ctx context.Context, vectors map[string][]float32) error
}

// VectorKey derives the cache key of text embedded under namespace
// (typically the embedding model name).
func VectorKey(namespace, text string) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryVectorCache is a process-local VectorCache.
type MemoryVectorCache struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

func NewMemoryVectorCache() *MemoryVectorCache {
	return &MemoryVectorCache{vectors: make(map[string][]float32)}
}

func (c *MemoryVectorCache) GetVectors(_ context.Context, keys []string) (map[string][]float32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]float32, len(keys))
	for _, k := range keys {
		if v, ok := c.vectors[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (c *MemoryVectorCache) PutVectors(_ context.Context, vectors map[string][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range vectors {
		c.vectors[k] = v
	}
	return nil
}

// Len is the number of cached vectors.
func (c *MemoryVectorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

// RedisVectorCache shares embeddings between processes through Redis.
type RedisVectorCache struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisVectorCache connects to addr and checks the connection.
func NewRedisVectorCache(ctx context.Context, cfg RedisConfig) (*RedisVectorCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisVectorCache{rdb: rdb, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

func (c *RedisVectorCache) GetVectors(ctx context.Context, keys []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	vals, err := c.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(s), &vec); err != nil {
			continue
		}
		out[keys[i]] = vec
	}
	return out, nil
}

func (c *RedisVectorCache) PutVectors(ctx context.Context, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	pipe := c.rdb.Pipeline()
	for k, v := range vectors {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		pipe.Set(ctx, c.prefix+k, raw, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *RedisVectorCache) Close() error {
	return c.rdb.Close()
}
