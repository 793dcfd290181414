// Package signalbus is a one-way signal dispatch facility: it owns the
// os/signal registration and fans a received signal out to every
// subscriber, but it never calls back into a subscriber once a shutdown
// is already in progress (a signal received mid-shutdown is logged and
// ignored). A buffered signal channel is drained by a dedicated listener
// goroutine, with a context for teardown and a sync.WaitGroup to join it.
package signalbus

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/bbpipeline/core/internal/logging"
)

// Bus listens for the portable interrupt and termination signals and
// dispatches them to every subscribed handler in registration order.
type Bus struct {
	logger *logging.Logger

	mu       sync.Mutex
	handlers []func(os.Signal)

	sigChan chan os.Signal
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	started  atomic.Bool
	busy     atomic.Bool
}

// New constructs a Bus. A nil logger falls back to a console
// logging.Logger at Info level.
func New(logger *logging.Logger) *Bus {
	if logger == nil {
		logger, _ = logging.New(logging.Config{MinLevel: logging.LevelInfo, Module: "signalbus"})
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		logger:  logger,
		sigChan: make(chan os.Signal, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Subscribe registers fn to be called, in registration order, whenever a
// signal arrives. Subscribe before calling Start.
func (b *Bus) Subscribe(fn func(os.Signal)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
}

// MarkBusy flags that a shutdown is already in progress; a subsequently
// received signal is logged and ignored rather than dispatched again.
func (b *Bus) MarkBusy(busy bool) { b.busy.Store(busy) }

// Start begins listening for SIGINT and SIGTERM.
func (b *Bus) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	signal.Notify(b.sigChan, syscall.SIGINT, syscall.SIGTERM)
	b.wg.Add(1)
	go b.listen()
}

// Stop stops signal delivery and waits for the listener to exit.
func (b *Bus) Stop() {
	if !b.started.CompareAndSwap(true, false) {
		return
	}
	signal.Stop(b.sigChan)
	b.cancel()
	b.wg.Wait()
}

func (b *Bus) listen() {
	defer b.wg.Done()
	for {
		select {
		case sig, ok := <-b.sigChan:
			if !ok {
				return
			}
			if b.busy.Load() {
				b.logger.Info("signal received during in-progress shutdown, ignoring", map[string]string{"signal": sig.String()})
				continue
			}
			b.logger.Info("received signal", map[string]string{"signal": sig.String()})
			b.dispatch(sig)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Bus) dispatch(sig os.Signal) {
	b.mu.Lock()
	handlers := make([]func(os.Signal), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	for _, h := range handlers {
		h(sig)
	}
}
