package track

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/LosAICode/neurogen-client/internal/shared"
	"github.com/charmbracelet/log"
)

func testLogger() *log.Logger {
	return shared.NewLogger(io.Discard)
}

// fakeClient is a scriptable StatusClient.
type fakeClient struct {
	mu            sync.Mutex
	statusPayload map[string]any
	statusErr     error
	statusCalls   int
	cancelErr     error
	cancelCalls   int
	pingErr       error
	pingCalls     int
}

func (f *fakeClient) TaskStatus(ctx context.Context, tt TaskType, taskID string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statusPayload, nil
}

func (f *fakeClient) CancelTask(ctx context.Context, tt TaskType, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeClient) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingCalls++
	return f.pingErr
}

func (f *fakeClient) calls() (status, cancel, ping int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.cancelCalls, f.pingCalls
}

// fakeSender records outbound push events.
type fakeSender struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (f *fakeSender) Send(event string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// fakeHistory counts recorded terminal notices.
type fakeHistory struct {
	mu      sync.Mutex
	notices []TerminalNotice
	err     error
}

func (f *fakeHistory) Record(ctx context.Context, notice TerminalNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.notices = append(f.notices, notice)
	return nil
}

func (f *fakeHistory) recorded() []TerminalNotice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TerminalNotice(nil), f.notices...)
}

// harness wires session, arbiter, simulator, and reconciler around a manual
// clock for deterministic timer tests.
type harness struct {
	sched   *ManualScheduler
	cfg     Config
	session *TaskSession
	arbiter *Arbiter
	sim     *Simulator
	rec     *Reconciler

	mu       sync.Mutex
	updates  []Update
	terminal []TerminalNotice
}

func newHarness(t *testing.T, history HistorySink, pinger Pinger) *harness {
	t.Helper()

	sched := NewManualScheduler(time.Unix(1000, 0))
	cfg := DefaultConfig()
	logger := testLogger()
	session := NewTaskSession()

	h := &harness{sched: sched, cfg: cfg, session: session}
	h.arbiter = NewArbiter(session, sched, cfg, logger, history, pinger)
	h.sim = NewSimulator(session, sched, cfg, logger)
	h.rec = NewReconciler(session, h.arbiter, h.sim, sched, cfg, logger)
	h.arbiter.OnTerminal(h.sim.Stop)

	session.Subscribe(func(u Update) {
		h.mu.Lock()
		h.updates = append(h.updates, u)
		h.mu.Unlock()
	})
	session.OnTerminal(func(n TerminalNotice) {
		h.mu.Lock()
		h.terminal = append(h.terminal, n)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) begin(taskID string) int {
	return h.session.Begin(taskID, TypeFile, h.sched.Now())
}

// snap builds a snapshot stamped with the harness clock.
func (h *harness) snap(taskID string, progress float64, src Source) TaskSnapshot {
	return TaskSnapshot{
		TaskID:     taskID,
		Progress:   progress,
		ReceivedAt: h.sched.Now(),
		Source:     src,
	}
}

func (h *harness) notices() []TerminalNotice {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]TerminalNotice(nil), h.terminal...)
}

func (h *harness) published() []Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Update(nil), h.updates...)
}

func (h *harness) lastAdvisory() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.updates) - 1; i >= 0; i-- {
		if h.updates[i].Advisory != "" {
			return h.updates[i].Advisory
		}
	}
	return ""
}
