package track

import (
	"fmt"
	"sync"
	"time"

	"github.com/LosAICode/neurogen-client/internal/shared"
	"github.com/charmbracelet/log"
)

// watchdogTick is how often the stall and safety checks re-evaluate.
const watchdogTick = time.Second

// PushConn is the push-channel surface the engine consumes. Implemented by
// transport.Channel in production.
type PushConn interface {
	PushSender
	// Connect establishes or reuses the connection.
	Connect() error
	// On registers the handler for a named event. One handler per event.
	On(event string, fn func(payload map[string]any))
	// OnConnect registers a callback for (re)connection.
	OnConnect(fn func())
	// OnDisconnect registers a callback for connection loss.
	OnDisconnect(fn func(err error))
	// Close tears the connection down.
	Close() error
}

// Engine wires both channels into the reconciler and owns the task
// lifecycle: Start resets the session and arms timers, Cancel routes through
// the cancellation coordinator, and the arbiter tears everything down
// exactly once at the terminal transition.
type Engine struct {
	cfg     Config
	sched   Scheduler
	logger  *log.Logger
	client  StatusClient
	push    PushConn // may be nil: poll-only mode
	session *TaskSession

	reconciler *Reconciler
	simulator  *Simulator
	arbiter    *Arbiter
	poller     *Poller
	health     *HealthMonitor
	canceller  *Canceller

	mu        sync.Mutex
	watchdogs []Handle
}

// EngineOpts configures a new Engine. Client is required; Push, Scheduler,
// Logger, and History are optional.
type EngineOpts struct {
	Config    Config
	Client    StatusClient
	Push      PushConn
	Scheduler Scheduler
	Logger    *log.Logger
	History   HistorySink
}

// NewEngine builds a fully wired engine.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Scheduler == nil {
		opts.Scheduler = NewTimerScheduler()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Config == (Config{}) {
		opts.Config = DefaultConfig()
	}

	e := &Engine{
		cfg:     opts.Config,
		sched:   opts.Scheduler,
		logger:  opts.Logger,
		client:  opts.Client,
		push:    opts.Push,
		session: NewTaskSession(),
	}

	e.arbiter = NewArbiter(e.session, e.sched, e.cfg, e.logger, opts.History, opts.Client)
	e.simulator = NewSimulator(e.session, e.sched, e.cfg, e.logger)
	e.reconciler = NewReconciler(e.session, e.arbiter, e.simulator, e.sched, e.cfg, e.logger)
	e.poller = NewPoller(e.session, e.client, e.reconciler, e.arbiter, e.sched, e.cfg, e.logger)

	var sender PushSender
	if e.push != nil {
		sender = e.push
	}
	e.health = NewHealthMonitor(e.session, sender, e.sched, e.cfg, e.logger)
	e.canceller = NewCanceller(e.session, e.client, sender, e.arbiter, e.sched, e.cfg, e.logger)

	e.arbiter.OnTerminal(e.poller.Stop)
	e.arbiter.OnTerminal(e.simulator.Stop)
	e.arbiter.OnTerminal(e.health.Stop)
	e.arbiter.OnTerminal(e.canceller.Stop)
	e.arbiter.OnTerminal(e.stopWatchdogs)

	if e.push != nil {
		e.bindPush()
	}
	return e
}

// Session exposes the shared session for subscription and inspection.
func (e *Engine) Session() *TaskSession {
	return e.session
}

// Subscribe registers a callback for every accepted change.
func (e *Engine) Subscribe(fn func(Update)) {
	e.session.Subscribe(fn)
}

// OnTerminal registers a callback fired exactly once per task.
func (e *Engine) OnTerminal(fn func(TerminalNotice)) {
	e.session.OnTerminal(fn)
}

// Accept feeds a snapshot into the reconciler. Exposed for channels not
// owned by the engine.
func (e *Engine) Accept(snap TaskSnapshot) {
	e.reconciler.Accept(snap)
}

// Start begins tracking a task, clearing every timer and guard from any
// previous one first.
func (e *Engine) Start(taskID string, tt TaskType) error {
	if taskID == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	s := e.session
	s.mu.Lock()
	if s.taskID != "" && !s.completionFired {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", shared.ErrTaskActive, s.taskID)
	}
	s.mu.Unlock()

	e.stopWatchdogs()
	e.poller.Stop()
	e.simulator.Stop()
	e.health.Stop()
	e.canceller.Stop()

	epoch := e.session.Begin(taskID, tt, e.sched.Now())
	e.logger.Info("tracking task", "task_id", taskID, "type", tt)

	if e.push != nil {
		if err := e.push.Connect(); err != nil {
			e.logger.Warn("push channel unavailable, polling only", "err", err)
			e.health.MarkDisconnected()
		} else {
			e.requestStatus(taskID)
			e.health.Start()
		}
	}

	e.poller.Start(epoch)
	e.armWatchdogs(epoch)
	return nil
}

// Cancel requests cancellation of the active task.
func (e *Engine) Cancel(taskID string) error {
	return e.canceller.Cancel(taskID)
}

// Close stops every timer and the push connection.
func (e *Engine) Close() error {
	e.stopWatchdogs()
	e.poller.Stop()
	e.simulator.Stop()
	e.health.Stop()
	e.canceller.Stop()
	if e.push != nil {
		return e.push.Close()
	}
	return nil
}

func (e *Engine) armWatchdogs(epoch int) {
	h := e.sched.Repeat(watchdogTick, func() {
		if e.session.Epoch() != epoch {
			return
		}
		e.reconciler.CheckStall()
		e.arbiter.CheckSafety()
	})
	e.mu.Lock()
	e.watchdogs = append(e.watchdogs, h)
	e.mu.Unlock()
}

func (e *Engine) stopWatchdogs() {
	e.mu.Lock()
	for _, h := range e.watchdogs {
		h.Stop()
	}
	e.watchdogs = nil
	e.mu.Unlock()
}

func (e *Engine) requestStatus(taskID string) {
	err := e.push.Send("request_task_status", map[string]any{"task_id": taskID})
	if err != nil {
		e.logger.Debug("status re-sync request failed", "task_id", taskID, "err", err)
	}
}

// bindPush maps push events onto the reconciler, the arbiter, and the
// health monitor. Each channel stays a thin adapter: all completion logic
// lives behind the arbiter.
func (e *Engine) bindPush() {
	e.push.On("progress_update", func(payload map[string]any) {
		snap := NormalizeSnapshot(e.session.TaskID(), payload, SourcePush, e.sched.Now())
		e.reconciler.Accept(snap)
	})
	e.push.On("task_completed", func(payload map[string]any) {
		e.terminalFromPush(payload, Completed, "completed")
	})
	e.push.On("task_error", func(payload map[string]any) {
		e.terminalFromPush(payload, Failed, "error")
	})
	e.push.On("task_cancelled", func(payload map[string]any) {
		e.terminalFromPush(payload, Cancelled, "cancelled")
	})
	e.push.On("pong_to_client", func(payload map[string]any) {
		e.health.Pong(payload)
	})
	e.push.OnConnect(func() {
		e.health.MarkConnected()
		if id := e.session.TaskID(); id != "" {
			e.requestStatus(id)
		}
	})
	e.push.OnDisconnect(func(err error) {
		e.logger.Warn("push channel disconnected, relying on status polls", "err", err)
		e.health.MarkDisconnected()
		e.session.advise("push channel disconnected; relying on status polls")
	})
}

func (e *Engine) terminalFromPush(payload map[string]any, outcome Status, status string) {
	snap := NormalizeSnapshot(e.session.TaskID(), payload, SourcePush, e.sched.Now())
	if snap.Status == "" {
		snap.Status = status
	}
	e.arbiter.Signal(snap.TaskID, outcome, snap, false)
}
