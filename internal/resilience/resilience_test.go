package resilience

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteReturnsValueOnFirstSuccess(t *testing.T) {
	e := New(DefaultConfig())
	v, rc, err := Execute(context.Background(), e, "fetch", func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int64(1), e.Stats().Successes)
	assert.Equal(t, "fetch", rc.Name)
	assert.Equal(t, 1, rc.CurrentAttempt)
	assert.Empty(t, rc.History, "a first-try success records no attempt history")
}

func TestExecuteRetriesRecoverableErrorThenSucceeds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxAttempts = 3
	e := New(cfg)

	calls := 0
	v, rc, err := Execute(context.Background(), e, "dns-lookup", func() (string, error) {
		calls++
		if calls < 3 {
			return "", &net.DNSError{Err: "no such host", IsNotFound: true}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	require.Len(t, rc.History, 2, "two failed attempts before the third succeeded")
	assert.Equal(t, 1, rc.History[0].Attempt)
	assert.Equal(t, 2, rc.History[1].Attempt)
	assert.Equal(t, KindDNSResolution, rc.History[0].Kind)
	assert.Equal(t, time.Duration(0), rc.History[0].Delay, "no delay precedes the first attempt")
	assert.Greater(t, rc.History[1].Delay, time.Duration(0), "a backoff sleep precedes the second attempt")
}

func TestExecuteFailsNonRecoverableImmediately(t *testing.T) {
	e := New(DefaultConfig())
	calls := 0
	_, rc, err := Execute(context.Background(), e, "op", func() (int, error) {
		calls++
		return 0, errors.New("invalid argument: must be positive")
	})

	var nre *NonRecoverableError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, 1, calls, "non-recoverable error must not retry")
	assert.True(t, rc.CanRetry(), "CanRetry checks only the attempt counter: 1 < 3")
}

func TestExecuteExhaustsRetriesAndReportsRetryExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxAttempts = 2
	cfg.CircuitThreshold = 0
	e := New(cfg)

	calls := 0
	_, rc, err := Execute(context.Background(), e, "op", func() (int, error) {
		calls++
		return 0, errors.New("connection timeout")
	})

	var rex *RetryExhaustedError
	require.ErrorAs(t, err, &rex)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, rex.Attempts)
	assert.False(t, rc.CanRetry(), "current_attempt has reached max_attempts")
}

func TestCircuitBreakerOpensAfterThresholdAndBlocksCalls(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxAttempts = 1
	cfg.CircuitThreshold = 2
	e := New(cfg)

	failing := func() (int, error) {
		return 0, errors.New("connection refused")
	}

	_, _, err1 := Execute(context.Background(), e, "op", failing)
	require.Error(t, err1)
	_, _, err2 := Execute(context.Background(), e, "op", failing)
	require.Error(t, err2)

	assert.True(t, e.Stats().CircuitOpen)

	calls := 0
	_, _, err3 := Execute(context.Background(), e, "op", func() (int, error) {
		calls++
		return 1, nil
	})
	var nre *NonRecoverableError
	require.ErrorAs(t, err3, &nre)
	assert.Equal(t, 0, calls, "breaker-open calls must short-circuit before invoking the operation")
}

func TestResetCircuitBreakerClosesOpenBreaker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxAttempts = 1
	cfg.CircuitThreshold = 1
	e := New(cfg)

	_, _, err := Execute(context.Background(), e, "op", func() (int, error) {
		return 0, errors.New("socket error")
	})
	require.Error(t, err)
	require.True(t, e.Stats().CircuitOpen)

	e.ResetCircuitBreaker()
	assert.False(t, e.Stats().CircuitOpen)
}

func TestExecuteRespectsContextCancellationDuringBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = 5 * time.Second
	cfg.MaxAttempts = 3
	e := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := Execute(ctx, e, "op", func() (int, error) {
		return 0, errors.New("network timeout")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifierReturningKindCustomFallsBackToBuiltinHeuristic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 1
	cfg.Classifiers = []Classifier{
		func(err error) ErrorKind { return KindCustom },
	}
	cfg.RecoverableKinds = map[ErrorKind]bool{} // nothing recoverable
	e := New(cfg)

	_, _, err := Execute(context.Background(), e, "op", func() (int, error) {
		return 0, errors.New("boom")
	})
	var nre *NonRecoverableError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, KindUnknown, nre.Kind)
}

func TestDoAsyncDeliversResultOnChannel(t *testing.T) {
	e := New(DefaultConfig())
	ch := DoAsync(context.Background(), e, "fetch", func() (int, error) {
		return 7, nil
	})
	res := <-ch
	require.NoError(t, res.Err)
	assert.Equal(t, 7, res.Value)
	assert.Equal(t, "fetch", res.Ctx.Name)
}

func TestDoRunsUntypedOperation(t *testing.T) {
	e := New(DefaultConfig())
	v, rc, err := e.Do(context.Background(), "untyped", func() (any, error) {
		return "result", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "result", v)
	assert.Equal(t, "untyped", rc.Name)
}

func TestRetryContextKeepsEmptyNameWhileMetricsLabelFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OperationName = "configured"
	e := New(cfg)

	_, rc, err := Execute(context.Background(), e, "", func() (int, error) {
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "", rc.Name, "RetryContext.Name records the caller-supplied name verbatim")
	assert.Equal(t, "configured", e.resolveName(""))
}
