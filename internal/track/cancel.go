package track

import (
	"context"
	"sync"
	"time"

	"github.com/LosAICode/neurogen-client/internal/shared"
	"github.com/charmbracelet/log"
)

const cancelRequestTimeout = 10 * time.Second

// Canceller executes a user-requested cancel exactly once per task: the
// push channel is tried first, with a REST fallback armed behind a short
// timer. Whichever acknowledgment arrives first routes into the arbiter as
// a Cancelled terminal signal.
type Canceller struct {
	session *TaskSession
	client  StatusClient
	push    PushSender // may be nil
	arbiter *Arbiter
	sched   Scheduler
	cfg     Config
	logger  *log.Logger

	mu       sync.Mutex
	fallback Handle
}

// NewCanceller wires the coordinator to its collaborators.
func NewCanceller(session *TaskSession, client StatusClient, push PushSender, arbiter *Arbiter, sched Scheduler, cfg Config, logger *log.Logger) *Canceller {
	return &Canceller{
		session: session,
		client:  client,
		push:    push,
		arbiter: arbiter,
		sched:   sched,
		cfg:     cfg,
		logger:  logger,
	}
}

// Cancel requests cancellation of the active task. Calling it again while a
// request is pending is a no-op, so rapid repeat invocations issue at most
// one REST fallback call.
func (c *Canceller) Cancel(taskID string) error {
	s := c.session
	s.mu.Lock()
	if s.taskID == "" || s.taskID != taskID {
		s.mu.Unlock()
		return shared.ErrTaskMismatch
	}
	if s.completionFired {
		s.mu.Unlock()
		return shared.ErrAlreadyTerminal
	}
	if s.cancelPending {
		s.mu.Unlock()
		return nil
	}
	s.cancelPending = true
	epoch := s.epoch
	tt := s.taskType
	s.mu.Unlock()

	c.logger.Info("cancel requested", "task_id", taskID)

	pushed := false
	if c.push != nil {
		if err := c.push.Send("cancel_task", map[string]any{"task_id": taskID}); err != nil {
			c.logger.Warn("push cancel failed, falling back to REST", "task_id", taskID, "err", err)
		} else {
			pushed = true
		}
	}

	delay := c.cfg.CancelFallback
	if !pushed {
		delay = 0
	}

	c.mu.Lock()
	if c.fallback != nil {
		c.fallback.Stop()
	}
	c.fallback = c.sched.Once(delay, func() { c.restCancel(epoch, taskID, tt) })
	c.mu.Unlock()
	return nil
}

// Stop disarms the fallback timer, invoked by the arbiter when the push
// acknowledgment wins the race.
func (c *Canceller) Stop() {
	c.mu.Lock()
	if c.fallback != nil {
		c.fallback.Stop()
		c.fallback = nil
	}
	c.mu.Unlock()
}

func (c *Canceller) restCancel(epoch int, taskID string, tt TaskType) {
	s := c.session
	s.mu.Lock()
	if s.epoch != epoch || s.completionFired || !s.cancelPending {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), cancelRequestTimeout)
	err := c.client.CancelTask(ctx, tt, taskID)
	cancel()

	if err != nil {
		// Recoverable: clear the latch so the user can retry.
		s.mu.Lock()
		if s.epoch == epoch {
			s.cancelPending = false
		}
		s.mu.Unlock()
		c.logger.Error("cancel request failed", "task_id", taskID, "err", err)
		c.session.advise("cancel request failed; try again")
		return
	}

	c.arbiter.Signal(taskID, Cancelled, TaskSnapshot{
		TaskID:     taskID,
		Progress:   -1,
		Message:    "cancelled by user",
		Status:     "cancelled",
		ReceivedAt: c.sched.Now(),
		Source:     SourcePoll,
	}, false)
}
