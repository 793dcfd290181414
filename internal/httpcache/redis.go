package httpcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier is the optional distributed L2 tier: the client is wrapped
// so that transport errors are swallowed as misses — a cache miss is
// never fatal to the caller.
type RedisTier struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// RedisConfig configures the distributed tier's connection.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
}

// NewRedisTier dials addr and verifies connectivity with a bounded ping.
func NewRedisTier(cfg RedisConfig) (*RedisTier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisTier{client: client, prefix: cfg.KeyPrefix, timeout: 5 * time.Second}, nil
}

func (r *RedisTier) key(url string) string {
	return r.prefix + url
}

// Get returns the raw wire-encoded entry for url, or false on miss or
// transport error — an L2 failure degrades to a cache miss, never to an
// error the caller must handle.
func (r *RedisTier) Get(url string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	val, err := r.client.Get(ctx, r.key(url)).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set stores data for url with ttl. Errors are swallowed: the L1 tier
// remains authoritative and L2 is best-effort.
func (r *RedisTier) Set(url string, data []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	_ = r.client.Set(ctx, r.key(url), data, ttl).Err()
}

// Delete removes url from the distributed tier.
func (r *RedisTier) Delete(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	_ = r.client.Del(ctx, r.key(url)).Err()
}

// Close releases the underlying connection pool.
func (r *RedisTier) Close() error {
	return r.client.Close()
}
