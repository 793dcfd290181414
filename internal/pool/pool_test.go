package pool

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateReturnsAlignedSlice(t *testing.T) {
	a := New(DefaultConfig())

	h, buf, err := a.Allocate(100, 16)
	require.NoError(t, err)
	require.Len(t, buf, 100)

	addr := uintptr(unsafe.Pointer(&buf[0]))
	assert.Equal(t, uintptr(0), addr%16)

	a.Deallocate(h)
}

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	a := New(DefaultConfig())

	h1, b1, err := a.Allocate(64, 8)
	require.NoError(t, err)
	for i := range b1 {
		b1[i] = byte(i)
	}

	h2, b2, err := a.Allocate(64, 8)
	require.NoError(t, err)
	for i := range b2 {
		b2[i] = byte(255 - i)
	}

	// The two live allocations must not alias.
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, byte(0), b1[0])
	assert.Equal(t, byte(255), b2[0])

	a.Deallocate(h1)
	a.Deallocate(h2)

	assert.True(t, a.CheckIntegrity())
}

func TestDeallocateCoalescesAdjacentFreeBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialSize = 4096
	cfg.EnableDefrag = true
	a := New(cfg)

	h1, _, err := a.Allocate(256, 8)
	require.NoError(t, err)
	h2, _, err := a.Allocate(256, 8)
	require.NoError(t, err)
	h3, _, err := a.Allocate(256, 8)
	require.NoError(t, err)

	a.Deallocate(h1)
	a.Deallocate(h2)
	a.Deallocate(h3)

	stats := a.Stats()
	// After coalescing all three adjacent frees plus the tail remainder
	// should merge down toward a single free span.
	assert.LessOrEqual(t, stats.AvailableBytes, int64(cfg.InitialSize))
	assert.True(t, a.CheckIntegrity())
}

func TestGrowthWhenNoBlockFits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialSize = 128
	cfg.MaxSize = 1024 * 1024
	a := New(cfg)

	h, buf, err := a.Allocate(1000, 8)
	require.NoError(t, err)
	require.Len(t, buf, 1000)
	a.Deallocate(h)

	stats := a.Stats()
	assert.Greater(t, stats.PoolSize, int64(128))
}

func TestAllocateFailsWhenExceedingMaxSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialSize = 64
	cfg.MaxSize = 128
	a := New(cfg)

	_, _, err := a.Allocate(10000, 8)
	assert.Error(t, err)
}

func TestStatsTracksPeakUsage(t *testing.T) {
	a := New(DefaultConfig())

	h1, _, err := a.Allocate(1000, 8)
	require.NoError(t, err)
	h2, _, err := a.Allocate(2000, 8)
	require.NoError(t, err)

	stats := a.Stats()
	assert.GreaterOrEqual(t, stats.PeakUsedBytes, int64(3000))

	a.Deallocate(h1)
	a.Deallocate(h2)

	stats = a.Stats()
	assert.Equal(t, int64(0), stats.CurrentUsedBytes)
	assert.GreaterOrEqual(t, stats.PeakUsedBytes, int64(3000))
}

func TestDumpStateListsBlocks(t *testing.T) {
	a := New(DefaultConfig())
	h, _, err := a.Allocate(50, 8)
	require.NoError(t, err)

	out := a.DumpState()
	assert.Contains(t, out, "ALLOCATED")

	a.Deallocate(h)
	out = a.DumpState()
	assert.Contains(t, out, "FREE")
}

// TestIntegrityUnderRandomizedWorkload interleaves ≥10,000 allocate/
// deallocate operations of random sizes and asserts check_integrity holds
// throughout, per the pool allocator's additional property test.
func TestIntegrityUnderRandomizedWorkload(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialSize = 64 * 1024
	cfg.MaxSize = 64 * 1024 * 1024
	a := New(cfg)

	rng := rand.New(rand.NewSource(42))
	var live []Handle

	const ops = 10000
	for i := 0; i < ops; i++ {
		if len(live) == 0 || rng.Intn(2) == 0 {
			size := 1 + rng.Intn(2048)
			h, buf, err := a.Allocate(size, 8)
			if err != nil {
				continue
			}
			require.Len(t, buf, size)
			live = append(live, h)
		} else {
			idx := rng.Intn(len(live))
			a.Deallocate(live[idx])
			live = append(live[:idx], live[idx+1:]...)
		}

		if i%500 == 0 {
			require.True(t, a.CheckIntegrity(), "integrity violated at op %d", i)
		}
	}

	for _, h := range live {
		a.Deallocate(h)
	}
	assert.True(t, a.CheckIntegrity())
}

func TestDefragmentIncrementsCounter(t *testing.T) {
	a := New(DefaultConfig())
	h, _, err := a.Allocate(32, 8)
	require.NoError(t, err)
	a.Deallocate(h)

	a.Defragment()
	stats := a.Stats()
	assert.Equal(t, int64(1), stats.DefragmentationCount)
}
