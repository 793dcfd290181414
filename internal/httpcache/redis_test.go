package httpcache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedisTier(t *testing.T) (*RedisTier, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	tier, err := NewRedisTier(RedisConfig{
		Addr:        mr.Addr(),
		PoolSize:    5,
		DialTimeout: time.Second,
		ReadTimeout: time.Second,
		KeyPrefix:   "bbpipeline:httpcache:",
	})
	require.NoError(t, err)

	return tier, mr
}

func TestRedisTierSetGetRoundTrip(t *testing.T) {
	tier, mr := setupTestRedisTier(t)
	defer mr.Close()
	defer tier.Close()

	tier.Set("https://example.com/a", []byte("payload"), time.Minute)

	got, ok := tier.Get("https://example.com/a")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}

func TestRedisTierMissOnUnknownKey(t *testing.T) {
	tier, mr := setupTestRedisTier(t)
	defer mr.Close()
	defer tier.Close()

	_, ok := tier.Get("https://example.com/missing")
	assert.False(t, ok)
}

func TestRedisTierDelete(t *testing.T) {
	tier, mr := setupTestRedisTier(t)
	defer mr.Close()
	defer tier.Close()

	tier.Set("https://example.com/b", []byte("x"), time.Minute)
	tier.Delete("https://example.com/b")

	_, ok := tier.Get("https://example.com/b")
	assert.False(t, ok)
}

func TestRedisTierExpiry(t *testing.T) {
	tier, mr := setupTestRedisTier(t)
	defer mr.Close()
	defer tier.Close()

	tier.Set("https://example.com/c", []byte("x"), 50*time.Millisecond)
	mr.FastForward(100 * time.Millisecond)

	_, ok := tier.Get("https://example.com/c")
	assert.False(t, ok)
}

func TestRedisTierGetAfterServerClosedDegradesToMiss(t *testing.T) {
	tier, mr := setupTestRedisTier(t)
	defer tier.Close()

	tier.Set("https://example.com/d", []byte("x"), time.Minute)
	mr.Close()

	_, ok := tier.Get("https://example.com/d")
	assert.False(t, ok, "a transport failure must degrade to a miss, never an error the caller must handle")
}
