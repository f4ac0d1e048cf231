package track

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// StatusClient is the REST surface the engine consumes. Implemented by
// transport.Client in production and by test doubles here.
type StatusClient interface {
	// TaskStatus fetches the raw status payload for a task.
	TaskStatus(ctx context.Context, tt TaskType, taskID string) (map[string]any, error)
	// CancelTask requests server-side cancellation.
	CancelTask(ctx context.Context, tt TaskType, taskID string) error
	// Ping probes the liveness endpoint.
	Ping(ctx context.Context) error
}

const pollRequestTimeout = 10 * time.Second

// Poller issues periodic status requests while a task is active. Polling
// runs whether or not the push channel is healthy: it is the safety net for
// missed push events, not a fallback mode.
type Poller struct {
	session    *TaskSession
	client     StatusClient
	reconciler *Reconciler
	arbiter    *Arbiter
	sched      Scheduler
	cfg        Config
	logger     *log.Logger

	mu      sync.Mutex
	handle  Handle
	running bool
	epoch   int
	polls   int
	errors  int
	clean   int
}

// NewPoller wires the poll loop to its collaborators.
func NewPoller(session *TaskSession, client StatusClient, reconciler *Reconciler, arbiter *Arbiter, sched Scheduler, cfg Config, logger *log.Logger) *Poller {
	return &Poller{
		session:    session,
		client:     client,
		reconciler: reconciler,
		arbiter:    arbiter,
		sched:      sched,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start begins polling for the given session epoch, replacing any previous
// loop.
func (p *Poller) Start(epoch int) {
	p.mu.Lock()
	if p.handle != nil {
		p.handle.Stop()
	}
	p.running = true
	p.epoch = epoch
	p.polls = 0
	p.errors = 0
	p.clean = 0
	p.handle = p.sched.Once(p.cfg.MinPollInterval, p.poll)
	p.mu.Unlock()
}

// Stop clears the poll timer. Safe to call multiple times.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.running = false
	if p.handle != nil {
		p.handle.Stop()
		p.handle = nil
	}
	p.mu.Unlock()
}

func (p *Poller) poll() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	epoch := p.epoch
	p.mu.Unlock()

	s := p.session
	s.mu.Lock()
	if s.epoch != epoch || s.taskID == "" || s.completionFired {
		s.mu.Unlock()
		return
	}
	taskID := s.taskID
	tt := s.taskType
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), pollRequestTimeout)
	payload, err := p.client.TaskStatus(ctx, tt, taskID)
	cancel()

	if err != nil {
		p.mu.Lock()
		p.polls++
		p.errors++
		p.clean = 0
		errs := p.errors
		p.mu.Unlock()

		p.logger.Warn("status poll failed", "task_id", taskID, "consecutive", errs, "err", err)
		if errs%p.cfg.ErrorThreshold == 0 {
			p.escalate(taskID)
		}
	} else {
		p.mu.Lock()
		p.polls++
		p.errors = 0
		p.clean++
		p.mu.Unlock()

		snap := NormalizeSnapshot(taskID, payload, SourcePoll, p.sched.Now())
		p.reconciler.Accept(snap)
	}

	p.schedule(epoch)
}

func (p *Poller) schedule(epoch int) {
	d := p.nextInterval()
	p.mu.Lock()
	if !p.running || p.epoch != epoch {
		p.mu.Unlock()
		return
	}
	p.handle = p.sched.Once(d, p.poll)
	p.mu.Unlock()
}

// nextInterval picks the delay before the next poll. Warm-up polls run at
// the minimum interval; afterwards the current progress band decides:
// near-completion polls fast, mid-range polls at the moderate interval, and
// the low band relaxes toward the minimum once errors clear. Request
// failures switch to exponential backoff with jitter, bounded by the
// maximum interval.
func (p *Poller) nextInterval() time.Duration {
	p.mu.Lock()
	polls, errs, clean := p.polls, p.errors, p.clean
	p.mu.Unlock()

	if errs > 0 {
		d := p.cfg.MinPollInterval
		for i := 0; i < errs && d < p.cfg.MaxPollInterval; i++ {
			d *= 2
		}
		if d > p.cfg.MaxPollInterval {
			d = p.cfg.MaxPollInterval
		}
		jitter := time.Duration(rand.Int64N(int64(d/4) + 1))
		return d - jitter
	}

	if polls < p.cfg.WarmupPolls {
		return p.cfg.MinPollInterval
	}

	progress := -1.0
	s := p.session
	s.mu.Lock()
	if s.haveSnapshot && s.last.HasProgress() {
		progress = s.last.Progress
	}
	s.mu.Unlock()

	switch {
	case progress >= 90:
		return p.cfg.MinPollInterval
	case progress >= 50:
		return p.cfg.MidPollInterval
	default:
		if clean >= 10 {
			return p.cfg.MinPollInterval
		}
		return 2 * p.cfg.MinPollInterval
	}
}

// escalate runs on every multiple of the consecutive-error threshold, so an
// outage that begins after a reachable ping is still re-evaluated: a live
// liveness endpoint means the status outage is transient and polling
// continues at max backoff; an unreachable one is a connectivity failure,
// resolved by forcing completion from cache so the UI never hangs.
func (p *Poller) escalate(taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := p.client.Ping(ctx)
	cancel()

	if err == nil {
		p.logger.Warn("status endpoint unreachable but server alive, holding at max backoff", "task_id", taskID)
		return
	}

	p.logger.Error("server unreachable, resolving task from cache", "task_id", taskID, "err", err)
	p.session.advise("server unreachable; resolving task from last known status")
	p.arbiter.ForceFromCache(taskID, Failed)
}
