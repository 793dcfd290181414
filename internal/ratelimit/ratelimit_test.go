package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketBurst(t *testing.T) {
	l := New()
	l.SetBucket("example.com", 5, 10)

	for i := 0; i < 10; i++ {
		assert.True(t, l.TryAcquire("example.com", 1), "request %d should be admitted", i)
	}
	assert.False(t, l.TryAcquire("example.com", 1), "eleventh request should be denied")
}

func TestAdaptiveBackoffProgression(t *testing.T) {
	l := New()
	l.SetBackoff("example.com", BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1000 * time.Millisecond,
		Multiplier:   2,
		MaxRetries:   5,
	})

	l.ReportFailure("example.com")
	assert.Equal(t, 100*time.Millisecond, l.CurrentDelay("example.com"))
	l.ReportFailure("example.com")
	assert.Equal(t, 200*time.Millisecond, l.CurrentDelay("example.com"))
	l.ReportFailure("example.com")
	assert.Equal(t, 400*time.Millisecond, l.CurrentDelay("example.com"))
	l.ReportFailure("example.com")
	assert.Equal(t, 800*time.Millisecond, l.CurrentDelay("example.com"))
	l.ReportFailure("example.com")
	assert.Equal(t, 1000*time.Millisecond, l.CurrentDelay("example.com"))
	l.ReportFailure("example.com")
	assert.Equal(t, 1000*time.Millisecond, l.CurrentDelay("example.com"))

	l.ReportSuccess("example.com")
	assert.Equal(t, 500*time.Millisecond, l.CurrentDelay("example.com"))

	l.ResetBackoff("example.com")
	assert.Equal(t, time.Duration(0), l.CurrentDelay("example.com"))
}

func TestReportSuccessClampsBelowInitialToZero(t *testing.T) {
	l := New()
	l.SetBackoff("example.com", BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1000 * time.Millisecond,
		Multiplier:   2,
	})
	l.ReportFailure("example.com") // 100ms
	l.ReportSuccess("example.com") // 50ms < initial -> clamp to 0
	assert.Equal(t, time.Duration(0), l.CurrentDelay("example.com"))
}

func TestBackoffBlocksAcquisitionRegardlessOfTokens(t *testing.T) {
	l := New()
	l.SetBucket("example.com", 100, 100)
	l.SetBackoff("example.com", BackoffConfig{InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2})

	l.ReportFailure("example.com")
	assert.True(t, l.IsRateLimited("example.com"))
	assert.False(t, l.TryAcquire("example.com", 1))
}

func TestGlobalBucketConsultedAlongsideDomain(t *testing.T) {
	l := New()
	l.SetGlobalRate(1)
	l.SetBucket("a.example.com", 100, 100)

	// Global bucket burst is 2 (max(1, 2*1)); it should exhaust before the
	// domain bucket does.
	assert.True(t, l.TryAcquire("a.example.com", 1))
	assert.True(t, l.TryAcquire("a.example.com", 1))
	assert.False(t, l.TryAcquire("a.example.com", 1))
}

func TestWaitTimeReflectsBackoffOverTokenDeficit(t *testing.T) {
	l := New()
	l.SetBucket("example.com", 1, 1)
	l.SetBackoff("example.com", BackoffConfig{InitialDelay: 5 * time.Second, MaxDelay: time.Minute, Multiplier: 2})

	require := l.TryAcquire("example.com", 1)
	assert.True(t, require)

	l.ReportFailure("example.com")
	wait := l.WaitTime("example.com", 1)
	assert.GreaterOrEqual(t, wait, 4*time.Second)
}

func TestStatsTracksRequestsAndDenials(t *testing.T) {
	l := New()
	l.SetBucket("example.com", 1, 1)

	l.TryAcquire("example.com", 1)
	l.TryAcquire("example.com", 1) // denied, bucket empty

	stats := l.DomainStats("example.com")
	assert.Equal(t, uint64(2), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.DeniedRequests)
}

func TestResetClearsAllDomainsAndGlobal(t *testing.T) {
	l := New()
	l.SetBucket("example.com", 5, 10)
	l.SetGlobalRate(5)
	l.TryAcquire("example.com", 1)

	l.Reset()

	stats := l.DomainStats("example.com")
	assert.Equal(t, uint64(0), stats.TotalRequests)
}

func TestCleanupRemovesFullUnthrottledDomains(t *testing.T) {
	l := New()
	l.SetBucket("idle.example.com", 100, 100)
	l.SetBucket("busy.example.com", 100, 100)
	l.TryAcquire("busy.example.com", 50)

	l.Cleanup()

	_, idleRemoved := l.domains["idle.example.com"]
	assert.False(t, idleRemoved)
	_, stillBusy := l.domains["busy.example.com"]
	assert.True(t, stillBusy)
}
