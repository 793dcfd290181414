// Package shutdown implements the kill-switch orchestrator: a linear
// phased shutdown state machine with per-phase timeouts, state
// snapshot persistence, and notification sinks. Restructured from a
// singleton driven by a raw background thread into a
// construction-injected Orchestrator whose shutdown sequence runs on a
// single goroutine, with waiters parked on a channel closed at
// completion. It does not import or subscribe to internal/signalbus and
// holds no reference back into the signal facility; its one outward hook
// is the terminal action set with SetTerminalAction.
package shutdown

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bbpipeline/core/internal/logging"
)

// Trigger categorizes why a shutdown was started.
type Trigger int

const (
	TriggerUserRequest Trigger = iota
	TriggerSystemSignal
	TriggerTimeout
	TriggerResourceExhaustion
	TriggerCriticalError
	TriggerDependencyFailure
	TriggerSecurityThreat
	TriggerExternalCommand
)

func (t Trigger) String() string {
	switch t {
	case TriggerUserRequest:
		return "user_request"
	case TriggerSystemSignal:
		return "system_signal"
	case TriggerTimeout:
		return "timeout"
	case TriggerResourceExhaustion:
		return "resource_exhaustion"
	case TriggerCriticalError:
		return "critical_error"
	case TriggerDependencyFailure:
		return "dependency_failure"
	case TriggerSecurityThreat:
		return "security_threat"
	case TriggerExternalCommand:
		return "external_command"
	default:
		return "unknown"
	}
}

// Phase is one step of the linear shutdown state machine.
type Phase int

const (
	PhaseInactive Phase = iota
	PhaseTriggered
	PhaseStoppingTasks
	PhaseSavingState
	PhaseCleanup
	PhaseFinalizing
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseInactive:
		return "inactive"
	case PhaseTriggered:
		return "triggered"
	case PhaseStoppingTasks:
		return "stopping_tasks"
	case PhaseSavingState:
		return "saving_state"
	case PhaseCleanup:
		return "cleanup"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Config configures an Orchestrator.
type Config struct {
	TaskStopTimeout      time.Duration
	StateSaveTimeout     time.Duration
	CleanupTimeout       time.Duration
	TotalShutdownTimeout time.Duration

	StateDirectory    string
	StateFilePrefix   string
	MaxStateFiles     int
	CompressStateData bool

	ForceImmediateStop bool
}

// DefaultConfig returns conservative phase and total shutdown budgets
// suitable for most deployments.
func DefaultConfig() Config {
	return Config{
		TaskStopTimeout:      5 * time.Second,
		StateSaveTimeout:     10 * time.Second,
		CleanupTimeout:       3 * time.Second,
		TotalShutdownTimeout: 30 * time.Second,
		StateDirectory:       "./.kill_switch_state",
		StateFilePrefix:      "bb_pipeline_state_",
		MaxStateFiles:        100,
		CompressStateData:    true,
	}
}

// StateSnapshot is one component's preserved state.
type StateSnapshot struct {
	ComponentID string
	OperationID string
	Timestamp   time.Time
	StateType   string
	StateData   string
	Metadata    map[string]string
	DataSize    int
	Checksum    uint32
	Priority    int
	ExpiryTime  *time.Duration
}

// Callback types through which the orchestrator delegates its phase
// work to the components it is shutting down.
type (
	StatePreservationFunc func(componentID string) (*StateSnapshot, bool)
	TaskTerminationFunc   func(taskID string, timeout time.Duration) bool
	CleanupFunc           func(operationName string)
	NotificationFunc      func(trigger Trigger, phase Phase, details string)
)

// Stats is a point-in-time summary of the orchestrator's activity.
type Stats struct {
	TotalTriggers        int
	TriggerCounts        map[Trigger]int
	RecentTriggerReasons []string
	AvgShutdownTime      time.Duration
	MaxShutdownTime      time.Duration
	MinShutdownTime      time.Duration
	TotalStatesSaved     int
	TotalStateSizeBytes  int64
	StateSaveFailures    int
	PhaseHistory         []Phase
}

const (
	recentReasonsCap = 10
	phaseHistoryCap  = 50
)

// Orchestrator drives the linear shutdown state machine.
type Orchestrator struct {
	cfg    Config
	logger *logging.Logger
	clock  func() time.Time

	mu                     sync.Mutex
	cond                   *sync.Cond
	phase                  Phase
	triggered              bool
	shuttingDown           bool
	currentTrigger         Trigger
	triggerDetails         string
	stateCallbacks         map[string]StatePreservationFunc
	taskCallbacks          map[string]TaskTerminationFunc
	cleanupCallbacks       map[string]CleanupFunc
	notificationCallbacks  map[string]NotificationFunc
	stats                  Stats
	shutdownTotal          time.Duration
	shutdownCount          int
	terminalAction         func()

	done chan struct{}

	metrics *Metrics
}

// New constructs an Orchestrator. A nil logger falls back to a console
// logging.Logger at Info level.
func New(cfg Config, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger, _ = logging.New(logging.Config{MinLevel: logging.LevelInfo, Module: "shutdown"})
	}
	o := &Orchestrator{
		cfg:                   cfg,
		logger:                logger,
		clock:                 time.Now,
		phase:                 PhaseInactive,
		stateCallbacks:        make(map[string]StatePreservationFunc),
		taskCallbacks:         make(map[string]TaskTerminationFunc),
		cleanupCallbacks:      make(map[string]CleanupFunc),
		notificationCallbacks: make(map[string]NotificationFunc),
		stats: Stats{
			TriggerCounts:   make(map[Trigger]int),
			MinShutdownTime: time.Duration(1<<63 - 1),
		},
		done: make(chan struct{}),
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// AttachMetrics wires m to the orchestrator.
func (o *Orchestrator) AttachMetrics(m *Metrics) { o.metrics = m }

// SetTerminalAction registers the action finalize() delegates to the
// lower-level signal facility (e.g. Bus.Stop, os.Exit). The orchestrator
// never calls back synchronously into whatever owns that action during
// the rest of the shutdown sequence — this is the only hook.
func (o *Orchestrator) SetTerminalAction(fn func()) { o.terminalAction = fn }

// RegisterStatePreservation registers a state-preservation hook under id.
func (o *Orchestrator) RegisterStatePreservation(id string, fn StatePreservationFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stateCallbacks[id] = fn
}

// RegisterTaskTermination registers a task-termination hook under id.
func (o *Orchestrator) RegisterTaskTermination(id string, fn TaskTerminationFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.taskCallbacks[id] = fn
}

// RegisterCleanup registers a cleanup hook under name.
func (o *Orchestrator) RegisterCleanup(name string, fn CleanupFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cleanupCallbacks[name] = fn
}

// RegisterNotification registers a notification sink under id.
func (o *Orchestrator) RegisterNotification(id string, fn NotificationFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notificationCallbacks[id] = fn
}

// IsTriggered reports whether a shutdown has been triggered.
func (o *Orchestrator) IsTriggered() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.triggered
}

// IsShuttingDown reports whether a shutdown is actively executing.
func (o *Orchestrator) IsShuttingDown() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shuttingDown
}

// CurrentPhase returns the orchestrator's current phase.
func (o *Orchestrator) CurrentPhase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Trigger starts a graceful shutdown for reason, unless one is already in
// progress. The shutdown sequence executes on its own goroutine; use
// WaitForCompletion to block for the result.
func (o *Orchestrator) Trigger(reason Trigger, details string) {
	o.start(reason, details, o.cfg.ForceImmediateStop)
}

// ForceImmediate starts a shutdown that skips the graceful task-stopping
// and state-saving phases, jumping straight to cleanup, regardless of
// Config.ForceImmediateStop.
func (o *Orchestrator) ForceImmediate(reason string) {
	o.start(TriggerUserRequest, reason, true)
}

func (o *Orchestrator) start(reason Trigger, details string, forced bool) {
	o.mu.Lock()
	if o.triggered {
		o.mu.Unlock()
		return
	}
	o.triggered = true
	o.shuttingDown = true
	o.currentTrigger = reason
	o.triggerDetails = details
	o.phase = PhaseTriggered
	o.recordTrigger(reason, details)
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RecordTrigger(reason)
	}
	o.notify(reason, PhaseTriggered, details)
	go o.executeShutdown(reason, details, forced)
}

// CancelShutdown cancels a shutdown while it is still in the inactive or
// triggered phase. Returns false once task-stopping has begun.
func (o *Orchestrator) CancelShutdown(reason string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseInactive && o.phase != PhaseTriggered {
		return false
	}
	o.triggered = false
	o.shuttingDown = false
	o.phase = PhaseInactive
	return true
}

// WaitForCompletion blocks until the shutdown reaches PhaseCompleted or
// timeout elapses, returning true iff it completed.
func (o *Orchestrator) WaitForCompletion(timeout time.Duration) bool {
	if timeout <= 0 {
		<-o.done
		return true
	}
	select {
	case <-o.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Stats returns a copy of the orchestrator's current statistics.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.stats
	out.TriggerCounts = make(map[Trigger]int, len(o.stats.TriggerCounts))
	for k, v := range o.stats.TriggerCounts {
		out.TriggerCounts[k] = v
	}
	out.RecentTriggerReasons = append([]string(nil), o.stats.RecentTriggerReasons...)
	out.PhaseHistory = append([]Phase(nil), o.stats.PhaseHistory...)
	if o.shutdownCount > 0 {
		out.AvgShutdownTime = o.shutdownTotal / time.Duration(o.shutdownCount)
	}
	if out.MinShutdownTime == time.Duration(1<<63-1) {
		out.MinShutdownTime = 0
	}
	return out
}

func (o *Orchestrator) recordTrigger(reason Trigger, details string) {
	o.stats.TotalTriggers++
	o.stats.TriggerCounts[reason]++
	o.stats.RecentTriggerReasons = append(o.stats.RecentTriggerReasons, details)
	if len(o.stats.RecentTriggerReasons) > recentReasonsCap {
		o.stats.RecentTriggerReasons = o.stats.RecentTriggerReasons[len(o.stats.RecentTriggerReasons)-recentReasonsCap:]
	}
}

func (o *Orchestrator) transition(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.stats.PhaseHistory = append(o.stats.PhaseHistory, p)
	if len(o.stats.PhaseHistory) > phaseHistoryCap {
		o.stats.PhaseHistory = o.stats.PhaseHistory[len(o.stats.PhaseHistory)-phaseHistoryCap:]
	}
	trigger, details := o.currentTrigger, o.triggerDetails
	o.mu.Unlock()
	o.notify(trigger, p, details)
	if o.metrics != nil {
		o.metrics.RecordPhase(p)
	}
}

func (o *Orchestrator) notify(trigger Trigger, phase Phase, details string) {
	o.mu.Lock()
	sinks := make([]NotificationFunc, 0, len(o.notificationCallbacks))
	for _, fn := range o.notificationCallbacks {
		sinks = append(sinks, fn)
	}
	o.mu.Unlock()
	for _, fn := range sinks {
		fn(trigger, phase, details)
	}
}

func (o *Orchestrator) executeShutdown(reason Trigger, details string, forced bool) {
	start := o.clock()
	deadline := start.Add(o.cfg.TotalShutdownTimeout)
	timedOut := false

	if !forced {
		o.transition(PhaseStoppingTasks)
		if o.clock().Before(deadline) {
			o.stopRunningTasks(remaining(o.clock(), deadline, o.cfg.TaskStopTimeout))
		} else {
			timedOut = true
		}

		o.transition(PhaseSavingState)
		if !timedOut && o.clock().Before(deadline) {
			o.preserveCurrentState(remaining(o.clock(), deadline, o.cfg.StateSaveTimeout))
		} else {
			timedOut = true
		}
	}

	o.transition(PhaseCleanup)
	if o.clock().Before(deadline) {
		o.executeCleanupOperations(remaining(o.clock(), deadline, o.cfg.CleanupTimeout))
	} else {
		timedOut = true
	}

	o.transition(PhaseFinalizing)
	o.finalizeShutdown()

	elapsed := o.clock().Sub(start)
	o.mu.Lock()
	o.phase = PhaseCompleted
	o.shuttingDown = false
	o.shutdownTotal += elapsed
	o.shutdownCount++
	if elapsed > o.stats.MaxShutdownTime {
		o.stats.MaxShutdownTime = elapsed
	}
	if elapsed < o.stats.MinShutdownTime {
		o.stats.MinShutdownTime = elapsed
	}
	if timedOut {
		o.logger.Warn("shutdown exceeded total_shutdown_timeout", map[string]string{"trigger": reason.String()})
	}
	o.mu.Unlock()

	o.notify(reason, PhaseCompleted, details)
	o.cond.Broadcast()
	close(o.done)
}

func remaining(now, deadline time.Time, phaseBudget time.Duration) time.Duration {
	left := deadline.Sub(now)
	if left < phaseBudget {
		return left
	}
	return phaseBudget
}

func (o *Orchestrator) stopRunningTasks(budget time.Duration) {
	o.mu.Lock()
	hooks := make(map[string]TaskTerminationFunc, len(o.taskCallbacks))
	for k, v := range o.taskCallbacks {
		hooks[k] = v
	}
	o.mu.Unlock()

	deadline := o.clock().Add(budget)
	for id, fn := range hooks {
		left := deadline.Sub(o.clock())
		if left <= 0 {
			break
		}
		ok := fn(id, left)
		if !ok {
			o.logger.Warn("task termination hook reported failure", map[string]string{"task_id": id})
		}
	}
}

func (o *Orchestrator) preserveCurrentState(budget time.Duration) {
	o.mu.Lock()
	hooks := make(map[string]StatePreservationFunc, len(o.stateCallbacks))
	for k, v := range o.stateCallbacks {
		hooks[k] = v
	}
	trigger, details := o.currentTrigger, o.triggerDetails
	o.mu.Unlock()

	deadline := o.clock().Add(budget)
	var snapshots []StateSnapshot
	for id, fn := range hooks {
		if o.clock().After(deadline) {
			break
		}
		snap, ok := fn(id)
		if !ok || snap == nil {
			continue
		}
		snapshots = append(snapshots, *snap)
	}

	if len(snapshots) == 0 {
		return
	}

	if err := o.ensureStateDirectory(); err != nil {
		o.logger.Error("failed to create state directory", map[string]string{"error": err.Error()})
		o.mu.Lock()
		o.stats.StateSaveFailures++
		o.mu.Unlock()
		if o.metrics != nil {
			o.metrics.RecordStateSaved(false)
		}
		return
	}

	path, size, err := writeSnapshotFile(o.cfg, trigger, details, snapshots, o.clock())
	o.mu.Lock()
	if err != nil {
		o.stats.StateSaveFailures++
		o.mu.Unlock()
		if o.metrics != nil {
			o.metrics.RecordStateSaved(false)
		}
		o.logger.Error("failed to persist shutdown state", map[string]string{"error": err.Error()})
		return
	}
	o.stats.TotalStatesSaved += len(snapshots)
	o.stats.TotalStateSizeBytes += size
	o.mu.Unlock()
	if o.metrics != nil {
		o.metrics.RecordStateSaved(true)
	}
	o.logger.Info("shutdown state preserved", map[string]string{
		"path":      path,
		"snapshots": strconv.Itoa(len(snapshots)),
	})

	if err := pruneOldStateFiles(o.cfg); err != nil {
		o.logger.Warn("failed to prune old state files", map[string]string{"error": err.Error()})
	}
}

func (o *Orchestrator) executeCleanupOperations(budget time.Duration) {
	o.mu.Lock()
	hooks := make(map[string]CleanupFunc, len(o.cleanupCallbacks))
	for k, v := range o.cleanupCallbacks {
		hooks[k] = v
	}
	o.mu.Unlock()

	deadline := o.clock().Add(budget)
	for name, fn := range hooks {
		if o.clock().After(deadline) {
			break
		}
		fn(name)
	}
}

func (o *Orchestrator) finalizeShutdown() {
	if o.terminalAction != nil {
		o.terminalAction()
	}
}

// ensureStateDirectory creates the configured state directory (and its
// parents) if it does not already exist.
func (o *Orchestrator) ensureStateDirectory() error {
	return os.MkdirAll(o.cfg.StateDirectory, 0o755)
}
