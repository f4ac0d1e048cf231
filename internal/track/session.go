package track

import (
	"slices"
	"sync"
	"time"
)

// TransportQuality classifies push-link health.
type TransportQuality int

const (
	QualityUnknown TransportQuality = iota
	QualityExcellent
	QualityGood
	QualityPoor
	QualityDisconnected
)

func (q TransportQuality) String() string {
	switch q {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityPoor:
		return "poor"
	case QualityDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// TransportHealth is the heartbeat monitor's view of the push link.
type TransportHealth struct {
	Quality     TransportQuality
	PingHistory []time.Duration // most recent last, at most 5 samples
}

// Update is delivered to subscribers on every accepted change.
type Update struct {
	TaskID          string
	Status          Status
	DisplayProgress float64
	Message         string
	Stats           map[string]any
	Health          TransportHealth
	Advisory        string // non-empty for connectivity advisories
}

// TerminalNotice is fired exactly once per task.
type TerminalNotice struct {
	TaskID     string
	TaskType   TaskType
	Outcome    Status
	Final      TaskSnapshot
	Incomplete bool // set when the outcome was forced without a usable snapshot
}

// TaskSession is the shared mutable record for the single actively tracked
// task. All components in this package coordinate through it; mutations go
// through guarded methods (or hold mu directly) so the single-fire guards
// hold under arbitrary callback interleaving.
type TaskSession struct {
	mu sync.Mutex

	// epoch increments on every Begin and reset. Timer and network callbacks
	// capture it at arm time and no-op on mismatch, which is what isolates
	// task B from task A's leftover callbacks.
	epoch int

	taskID          string
	taskType        TaskType
	status          Status
	last            TaskSnapshot
	haveSnapshot    bool
	display         float64
	lastRealUpdate  time.Time
	stagnantSince   time.Time
	completionFired bool
	cancelPending   bool
	health          TransportHealth

	subs         []func(Update)
	terminalSubs []func(TerminalNotice)
}

// NewTaskSession returns an idle session.
func NewTaskSession() *TaskSession {
	return &TaskSession{status: Idle}
}

// Subscribe registers a callback invoked on every accepted change.
func (s *TaskSession) Subscribe(fn func(Update)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// OnTerminal registers a callback invoked exactly once per task.
func (s *TaskSession) OnTerminal(fn func(TerminalNotice)) {
	s.mu.Lock()
	s.terminalSubs = append(s.terminalSubs, fn)
	s.mu.Unlock()
}

// Begin resets the session for a new task and returns the new epoch. All
// guards and progress state from the previous task are cleared.
func (s *TaskSession) Begin(taskID string, tt TaskType, now time.Time) int {
	s.mu.Lock()
	s.epoch++
	s.taskID = taskID
	s.taskType = tt
	s.status = Starting
	s.last = TaskSnapshot{}
	s.haveSnapshot = false
	s.display = 0
	s.lastRealUpdate = now
	s.stagnantSince = time.Time{}
	s.completionFired = false
	s.cancelPending = false
	epoch := s.epoch
	u := s.updateLocked()
	s.mu.Unlock()
	s.publish(u)
	return epoch
}

// resetToIdle tears the session down after terminal side effects have run.
// The epoch bump invalidates any callback still in flight.
func (s *TaskSession) resetToIdle() {
	s.mu.Lock()
	s.epoch++
	s.taskID = ""
	s.status = Idle
	s.last = TaskSnapshot{}
	s.haveSnapshot = false
	s.display = 0
	s.stagnantSince = time.Time{}
	s.completionFired = false
	s.cancelPending = false
	s.mu.Unlock()
}

// TaskID returns the id of the currently tracked task, or "" when idle.
func (s *TaskSession) TaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskID
}

// TaskTypeOf returns the type of the currently tracked task.
func (s *TaskSession) TaskTypeOf() TaskType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskType
}

// Status returns the current lifecycle state.
func (s *TaskSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// DisplayProgress returns what the UI should show right now.
func (s *TaskSession) DisplayProgress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}

// Epoch returns the current session epoch.
func (s *TaskSession) Epoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// LastSnapshot returns the most recently accepted real snapshot, if any.
func (s *TaskSession) LastSnapshot() (TaskSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.haveSnapshot
}

// CancelPending reports whether a cancellation request is in flight.
func (s *TaskSession) CancelPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelPending
}

// CompletionFired reports whether the terminal transition already ran.
func (s *TaskSession) CompletionFired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completionFired
}

// Health returns the current transport health.
func (s *TaskSession) Health() TransportHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// setHealth replaces transport health and notifies subscribers. Never
// mutates task status.
func (s *TaskSession) setHealth(h TransportHealth) {
	s.mu.Lock()
	s.health = h
	u := s.updateLocked()
	s.mu.Unlock()
	s.publish(u)
}

// advise delivers a non-terminal connectivity advisory to subscribers.
func (s *TaskSession) advise(msg string) {
	s.mu.Lock()
	u := s.updateLocked()
	s.mu.Unlock()
	u.Advisory = msg
	s.publish(u)
}

// updateLocked builds the subscriber view. Callers hold mu.
func (s *TaskSession) updateLocked() Update {
	return Update{
		TaskID:          s.taskID,
		Status:          s.status,
		DisplayProgress: s.display,
		Message:         s.last.Message,
		Stats:           s.last.Stats,
		Health:          s.health,
	}
}

// publish invokes subscribers outside the lock so they can read session
// state without deadlocking.
func (s *TaskSession) publish(u Update) {
	s.mu.Lock()
	subs := slices.Clone(s.subs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(u)
	}
}

func (s *TaskSession) publishTerminal(n TerminalNotice) {
	s.mu.Lock()
	subs := slices.Clone(s.terminalSubs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(n)
	}
}
