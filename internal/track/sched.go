package track

import (
	"sort"
	"sync"
	"time"
)

// Handle is a cancellable timer registration. Stop never blocks and is safe
// to call more than once; a callback already in flight may still run, so
// callbacks must re-check session state.
type Handle interface {
	Stop()
}

// Scheduler is the single source of timers for the engine. Routing every
// timer through one interface lets a task reset stop all of them and lets
// tests drive the clock deterministically.
type Scheduler interface {
	// Once runs fn once after d.
	Once(d time.Duration, fn func()) Handle
	// Repeat runs fn every d until the handle is stopped.
	Repeat(d time.Duration, fn func()) Handle
	// Now returns the scheduler's view of the current time.
	Now() time.Time
}

// NewTimerScheduler returns the production Scheduler backed by runtime timers.
func NewTimerScheduler() Scheduler {
	return timerScheduler{}
}

type timerScheduler struct{}

func (timerScheduler) Now() time.Time {
	return time.Now()
}

func (timerScheduler) Once(d time.Duration, fn func()) Handle {
	return onceHandle{t: time.AfterFunc(d, fn)}
}

func (timerScheduler) Repeat(d time.Duration, fn func()) Handle {
	h := &repeatHandle{done: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return h
}

type onceHandle struct {
	t *time.Timer
}

func (h onceHandle) Stop() {
	h.t.Stop()
}

type repeatHandle struct {
	once sync.Once
	done chan struct{}
}

func (h *repeatHandle) Stop() {
	h.once.Do(func() { close(h.done) })
}

// ManualScheduler is a Scheduler driven by an explicit virtual clock, used in
// tests to exercise timer interleavings deterministically.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	owner    *ManualScheduler
	at       time.Time
	interval time.Duration // zero for one-shot
	fn       func()
	seq      int
	stopped  bool
}

func (t *manualTimer) Stop() {
	t.owner.mu.Lock()
	t.stopped = true
	t.owner.mu.Unlock()
}

// NewManualScheduler creates a ManualScheduler starting at the given instant.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualScheduler) Once(d time.Duration, fn func()) Handle {
	return m.add(d, 0, fn)
}

func (m *ManualScheduler) Repeat(d time.Duration, fn func()) Handle {
	return m.add(d, d, fn)
}

func (m *ManualScheduler) add(d, interval time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{owner: m, at: m.now.Add(d), interval: interval, fn: fn, seq: m.seq}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the virtual clock forward by d, firing due timers in time
// order. Callbacks run on the calling goroutine without the scheduler lock
// held, so they may arm or stop timers.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		t := m.nextDueLocked(target)
		if t == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = t.at
		if t.interval > 0 {
			t.at = t.at.Add(t.interval)
		} else {
			t.stopped = true
		}
		fn := t.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
}

func (m *ManualScheduler) nextDueLocked(target time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	for _, t := range m.timers {
		if !t.at.After(target) {
			return t
		}
	}
	return nil
}
