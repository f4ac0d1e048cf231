package track

import (
	"time"

	"github.com/charmbracelet/log"
)

// Reconciler is the single entry point for snapshots from either channel.
// It enforces the ordering rule, rejects stale poll responses, applies the
// poll completion heuristic, and detects stalls.
type Reconciler struct {
	session   *TaskSession
	arbiter   *Arbiter
	simulator *Simulator
	sched     Scheduler
	cfg       Config
	logger    *log.Logger
}

// NewReconciler wires the reconciler to its collaborators.
func NewReconciler(session *TaskSession, arbiter *Arbiter, simulator *Simulator, sched Scheduler, cfg Config, logger *log.Logger) *Reconciler {
	return &Reconciler{
		session:   session,
		arbiter:   arbiter,
		simulator: simulator,
		sched:     sched,
		cfg:       cfg,
		logger:    logger,
	}
}

// Accept merges one snapshot into the session.
//
// Ordering rule: a snapshot is accepted only when it carries no progress, or
// its progress is >= the currently accepted real progress, or it reports a
// terminal status. Poll snapshots whose ReceivedAt is not newer than the
// last accepted snapshot from either source are dropped outright.
func (r *Reconciler) Accept(snap TaskSnapshot) {
	s := r.session
	s.mu.Lock()

	if s.taskID == "" || snap.TaskID != s.taskID || s.completionFired {
		s.mu.Unlock()
		r.logger.Debug("dropping snapshot for inactive task", "task_id", snap.TaskID, "source", snap.Source)
		return
	}

	if snap.Source == SourcePoll && s.haveSnapshot && !snap.ReceivedAt.After(s.last.ReceivedAt) {
		s.mu.Unlock()
		r.logger.Debug("dropping stale poll snapshot", "task_id", snap.TaskID)
		return
	}

	if snap.TerminalStatus() {
		s.mu.Unlock()
		r.arbiter.Signal(snap.TaskID, snap.Outcome(), snap, false)
		return
	}

	// Poll completion heuristic: near-certain completion signals that the
	// server reports without a terminal status.
	if snap.Source == SourcePoll &&
		((snap.HasProgress() && snap.Progress >= 99) ||
			(snap.Status == "success" && snap.OutputRef != "")) {
		s.mu.Unlock()
		r.arbiter.Signal(snap.TaskID, Completed, snap, false)
		return
	}

	if snap.HasProgress() && s.haveSnapshot && s.last.HasProgress() && snap.Progress < s.last.Progress {
		s.mu.Unlock()
		r.logger.Debug("dropping regressed snapshot",
			"task_id", snap.TaskID, "progress", snap.Progress, "accepted", r.session.DisplayProgress())
		return
	}

	prev := s.last
	hadSnapshot := s.haveSnapshot
	merged := snap
	if !snap.HasProgress() && hadSnapshot && prev.HasProgress() {
		// A message-only frame must not erase the accepted real progress:
		// the regression check above and the safety rules compare against
		// the cached value.
		merged.Progress = prev.Progress
	}
	s.last = merged
	s.haveSnapshot = true

	// A poll that reports the same progress as before is not activity: it
	// must not reset the stall and safety clocks, or a server stuck at 92%
	// would look alive forever.
	progressed := false
	if snap.HasProgress() {
		if snap.Progress > s.display {
			s.display = snap.Progress
		}
		progressed = !hadSnapshot || !prev.HasProgress() || snap.Progress > prev.Progress
		if progressed {
			s.lastRealUpdate = snap.ReceivedAt
			s.stagnantSince = time.Time{}
		} else if s.stagnantSince.IsZero() {
			s.stagnantSince = snap.ReceivedAt
		}
	} else {
		s.lastRealUpdate = snap.ReceivedAt
	}

	exitedStall := false
	switch s.status {
	case Starting:
		s.status = Running
	case Stalled:
		if progressed {
			s.status = Running
			s.stagnantSince = time.Time{}
			exitedStall = true
		}
	}

	u := s.updateLocked()
	s.mu.Unlock()

	if exitedStall {
		r.simulator.Stop()
	}
	s.publish(u)
}

// CheckStall transitions Running -> Stalled when no real update moved the
// progress value for longer than the configured threshold, and hands the
// plateau to the simulator. Armed as a repeating watchdog by the engine.
func (r *Reconciler) CheckStall() {
	s := r.session
	s.mu.Lock()
	if s.completionFired || s.status != Running || !s.haveSnapshot {
		s.mu.Unlock()
		return
	}
	if r.sched.Now().Sub(s.lastRealUpdate) < r.cfg.StallAfter {
		s.mu.Unlock()
		return
	}

	s.status = Stalled
	if s.stagnantSince.IsZero() {
		s.stagnantSince = s.lastRealUpdate
	}
	plateau := s.display
	message := s.last.Message
	u := s.updateLocked()
	s.mu.Unlock()

	r.logger.Debug("task stalled", "task_id", u.TaskID, "plateau", plateau)
	s.publish(u)
	r.simulator.Start(plateau, message)
}
