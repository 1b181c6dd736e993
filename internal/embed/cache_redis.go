package embed

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"glowrs/internal/logx"
)

// RedisCache shares vectors between server processes. Failures are logged
// and treated as misses; the cache never fails a request.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    zerolog.Logger

	hits, misses atomic.Uint64
}

// NewRedisCache connects to addr, either "host:port" or a redis:// URL, and
// pings it.
func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	var client redis.UniversalClient
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		client = redis.NewClient(opts)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisCache{client: client, ttl: ttl, log: logx.For("embed-cache")}, nil
}

func (c *RedisCache) Get(ctx context.Context, model, text string) ([]float32, bool) {
	b, err := c.client.Get(ctx, CacheKey(model, text)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("redis get failed")
		}
		c.misses.Add(1)
		return nil, false
	}
	v, ok := decodeVector(b)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, model, text string, v []float32) {
	if err := c.client.Set(ctx, CacheKey(model, text), encodeVector(v), c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("redis set failed")
	}
}

// Stats reports hit and miss counts. Size is not tracked.
func (c *RedisCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close releases the connection pool.
func (c *RedisCache) Close() error { return c.client.Close() }

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}
