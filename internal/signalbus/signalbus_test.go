package signalbus

import (
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeDispatchesToAllHandlersInOrder(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var order []int

	b.Subscribe(func(os.Signal) {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	})
	b.Subscribe(func(os.Signal) {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	})

	b.Start()
	defer b.Stop()

	b.dispatch(syscall.SIGTERM)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, order)
}

func TestMarkBusySuppressesDispatchDuringShutdown(t *testing.T) {
	b := New(nil)
	var calls int
	var mu sync.Mutex
	b.Subscribe(func(os.Signal) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	b.Start()
	defer b.Stop()

	b.MarkBusy(true)
	b.sigChan <- syscall.SIGTERM

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls, "signal received while busy must be ignored, not dispatched")
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	b := New(nil)
	b.Start()
	b.Start()
	b.Stop()
	b.Stop()
}
