package track

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// HistorySink receives the final outcome of each task exactly once.
type HistorySink interface {
	Record(ctx context.Context, notice TerminalNotice) error
}

// Pinger probes the server liveness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Arbiter is the single authority for terminal transitions. Any number of
// signals may claim completion for a task; exactly one wins, flips the
// completion guard, runs the side effects, and notifies subscribers.
type Arbiter struct {
	session *TaskSession
	sched   Scheduler
	cfg     Config
	logger  *log.Logger
	history HistorySink // optional
	pinger  Pinger      // optional, used by the mid-range safety rule

	mu       sync.Mutex
	stoppers []func()
}

// NewArbiter wires the arbiter to its collaborators. history and pinger may
// be nil.
func NewArbiter(session *TaskSession, sched Scheduler, cfg Config, logger *log.Logger, history HistorySink, pinger Pinger) *Arbiter {
	return &Arbiter{
		session: session,
		sched:   sched,
		cfg:     cfg,
		logger:  logger,
		history: history,
		pinger:  pinger,
	}
}

// OnTerminal registers a side effect to run exactly once when a task
// reaches a terminal state, used to stop pollers, simulators, and timers.
func (a *Arbiter) OnTerminal(stop func()) {
	a.mu.Lock()
	a.stoppers = append(a.stoppers, stop)
	a.mu.Unlock()
}

// Signal attempts the Running -> Completing -> outcome transition. Returns
// false when the task id does not match the active session or the
// completion guard already fired; in that case nothing runs. The guard is
// flipped atomically with the transition, so concurrent signals from
// different channels resolve to exactly one winner.
func (a *Arbiter) Signal(taskID string, outcome Status, final TaskSnapshot, incomplete bool) bool {
	s := a.session
	s.mu.Lock()
	if s.taskID == "" || taskID != s.taskID || s.completionFired {
		s.mu.Unlock()
		return false
	}

	s.completionFired = true
	s.cancelPending = false
	s.status = Completing

	if final.IsZero() {
		if s.haveSnapshot {
			final = s.last
		} else {
			final = TaskSnapshot{TaskID: taskID, Progress: -1, ReceivedAt: a.sched.Now()}
			incomplete = true
		}
	}
	if final.HasProgress() && final.Progress > s.display {
		s.display = final.Progress
	}
	if outcome == Completed {
		s.display = 100
	}

	s.status = outcome
	notice := TerminalNotice{
		TaskID:     taskID,
		TaskType:   s.taskType,
		Outcome:    outcome,
		Final:      final,
		Incomplete: incomplete,
	}
	u := s.updateLocked()
	s.mu.Unlock()

	a.mu.Lock()
	stoppers := make([]func(), len(a.stoppers))
	copy(stoppers, a.stoppers)
	a.mu.Unlock()
	for _, stop := range stoppers {
		stop()
	}

	if a.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.history.Record(ctx, notice); err != nil {
			a.logger.Error("failed to persist task outcome", "task_id", taskID, "err", err)
		}
		cancel()
	}

	a.logger.Info("task reached terminal state",
		"task_id", taskID, "outcome", outcome, "incomplete", incomplete)

	s.publish(u)
	s.publishTerminal(notice)
	s.resetToIdle()
	return true
}

// ForceFromCache fires the terminal transition using the last cached
// snapshot. When no snapshot was ever accepted the notice still fires,
// flagged incomplete, so the UI resolves to a degraded state instead of
// hanging.
func (a *Arbiter) ForceFromCache(taskID string, outcome Status) bool {
	s := a.session
	s.mu.Lock()
	last, have := s.last, s.haveSnapshot
	s.mu.Unlock()
	if !have {
		last = TaskSnapshot{}
	}
	return a.Signal(taskID, outcome, last, !have)
}

// CheckSafety is the stall-safety watchdog: it forces completion from the
// cached snapshot when the task has sat near completion with no update of
// any kind, or mid-range with the server still reachable. Armed as a
// repeating watchdog by the engine.
func (a *Arbiter) CheckSafety() {
	s := a.session
	s.mu.Lock()
	if s.taskID == "" || s.completionFired || !s.haveSnapshot || !s.last.HasProgress() {
		s.mu.Unlock()
		return
	}
	taskID := s.taskID
	last := s.last
	idle := a.sched.Now().Sub(s.lastRealUpdate)
	s.mu.Unlock()

	if last.Progress >= 90 && idle >= a.cfg.NearCompleteSafety {
		a.logger.Warn("no updates near completion, forcing terminal state",
			"task_id", taskID, "progress", last.Progress, "idle", idle)
		a.Signal(taskID, Completed, last, false)
		return
	}

	if last.Progress >= 50 && last.Progress < 90 && idle >= a.cfg.MidRangeSafety && a.pinger != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := a.pinger.Ping(ctx)
		cancel()
		if err == nil {
			a.logger.Warn("server alive but task silent, forcing terminal state",
				"task_id", taskID, "progress", last.Progress, "idle", idle)
			a.Signal(taskID, Completed, last, false)
		}
	}
}
