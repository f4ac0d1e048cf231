package track

import (
	"regexp"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Simulator synthesizes a smoothly increasing display progress while the
// task sits at a known plateau. Simulated values are a display aid only:
// they never exceed the ceiling, never regress, never touch the completion
// guard, and are discarded the instant real progress overtakes them.
type Simulator struct {
	session *TaskSession
	sched   Scheduler
	cfg     Config
	logger  *log.Logger

	mu        sync.Mutex
	handle    Handle
	ceiling   float64
	startedAt time.Time
	epoch     int
	active    bool
}

// NewSimulator creates an inactive simulator.
func NewSimulator(session *TaskSession, sched Scheduler, cfg Config, logger *log.Logger) *Simulator {
	return &Simulator{session: session, sched: sched, cfg: cfg, logger: logger}
}

var batchHint = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)

// ceilingFor picks a conservative ceiling for the plateau. A batch fraction
// in the last message ("12/40") maps linearly into [BaseCeiling, MaxCeiling];
// without a hint the base ceiling applies.
func (sim *Simulator) ceilingFor(message string) float64 {
	ceiling := sim.cfg.BaseCeiling
	if m := batchHint.FindStringSubmatch(message); m != nil {
		n, okN := numberFrom(m[1])
		total, okT := numberFrom(m[2])
		if okN && okT && total > 0 && n <= total {
			hinted := 50 + n/total*45
			if hinted > ceiling {
				ceiling = hinted
			}
		}
	}
	if ceiling > sim.cfg.MaxCeiling {
		ceiling = sim.cfg.MaxCeiling
	}
	return ceiling
}

// Start begins simulating from the given plateau. A plateau at or above the
// computed ceiling leaves the display untouched.
func (sim *Simulator) Start(plateau float64, lastMessage string) {
	ceiling := sim.ceilingFor(lastMessage)
	if plateau >= ceiling {
		return
	}

	epoch := sim.session.Epoch()

	sim.mu.Lock()
	if sim.handle != nil {
		sim.handle.Stop()
	}
	sim.ceiling = ceiling
	sim.startedAt = sim.sched.Now()
	sim.epoch = epoch
	sim.active = true
	sim.handle = sim.sched.Repeat(sim.cfg.SimulationTick, sim.tick)
	sim.mu.Unlock()

	sim.logger.Debug("simulating progress", "plateau", plateau, "ceiling", ceiling)
}

// Stop halts simulation. Idempotent.
func (sim *Simulator) Stop() {
	sim.mu.Lock()
	if sim.handle != nil {
		sim.handle.Stop()
		sim.handle = nil
	}
	sim.active = false
	sim.mu.Unlock()
}

func (sim *Simulator) tick() {
	sim.mu.Lock()
	active := sim.active
	ceiling := sim.ceiling
	epoch := sim.epoch
	startedAt := sim.startedAt
	sim.mu.Unlock()
	if !active {
		return
	}

	if sim.sched.Now().Sub(startedAt) > sim.cfg.MaxSimulation {
		sim.Stop()
		return
	}

	s := sim.session
	s.mu.Lock()
	if s.epoch != epoch || s.completionFired || s.status != Stalled {
		s.mu.Unlock()
		sim.Stop()
		return
	}
	if s.display >= ceiling {
		s.mu.Unlock()
		sim.Stop()
		return
	}

	// Ease toward the ceiling: larger steps far from it, small steps close.
	step := (ceiling - s.display) * 0.08
	if step < 0.25 {
		step = 0.25
	}
	next := s.display + step
	if next > ceiling {
		next = ceiling
	}
	s.display = next
	u := s.updateLocked()
	s.mu.Unlock()

	s.publish(u)
}
