package track

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LosAICode/neurogen-client/internal/shared"
)

// fakePushConn is an in-memory PushConn that lets tests emit server events.
type fakePushConn struct {
	mu           sync.Mutex
	handlers     map[string]func(map[string]any)
	onConnect    func()
	onDisconnect func(err error)
	sent         []string
	connectErr   error
	closed       bool
}

func newFakePushConn() *fakePushConn {
	return &fakePushConn{handlers: map[string]func(map[string]any){}}
}

func (f *fakePushConn) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr
}

func (f *fakePushConn) On(event string, fn func(map[string]any)) {
	f.mu.Lock()
	f.handlers[event] = fn
	f.mu.Unlock()
}

func (f *fakePushConn) OnConnect(fn func()) {
	f.mu.Lock()
	f.onConnect = fn
	f.mu.Unlock()
}

func (f *fakePushConn) OnDisconnect(fn func(err error)) {
	f.mu.Lock()
	f.onDisconnect = fn
	f.mu.Unlock()
}

func (f *fakePushConn) Send(event string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return shared.ErrPushDisconnected
	}
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakePushConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// emit invokes the registered handler for an event, like a received frame.
func (f *fakePushConn) emit(event string, payload map[string]any) {
	f.mu.Lock()
	fn := f.handlers[event]
	f.mu.Unlock()
	if fn != nil {
		fn(payload)
	}
}

func (f *fakePushConn) dropConnection(err error) {
	f.mu.Lock()
	fn := f.onDisconnect
	f.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (f *fakePushConn) reconnect() {
	f.mu.Lock()
	fn := f.onConnect
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type engineHarness struct {
	engine *Engine
	sched  *ManualScheduler
	client *fakeClient
	push   *fakePushConn
	hist   *fakeHistory

	mu       sync.Mutex
	updates  []Update
	terminal []TerminalNotice
}

func newEngineHarness(t *testing.T, client *fakeClient, push *fakePushConn) *engineHarness {
	t.Helper()

	h := &engineHarness{
		sched:  NewManualScheduler(time.Unix(1000, 0)),
		client: client,
		push:   push,
		hist:   &fakeHistory{},
	}

	var conn PushConn
	if push != nil {
		conn = push
	}
	h.engine = NewEngine(EngineOpts{
		Client:    client,
		Push:      conn,
		Scheduler: h.sched,
		Logger:    testLogger(),
		History:   h.hist,
	})
	h.engine.Subscribe(func(u Update) {
		h.mu.Lock()
		h.updates = append(h.updates, u)
		h.mu.Unlock()
	})
	h.engine.OnTerminal(func(n TerminalNotice) {
		h.mu.Lock()
		h.terminal = append(h.terminal, n)
		h.mu.Unlock()
	})
	return h
}

func (h *engineHarness) notices() []TerminalNotice {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]TerminalNotice(nil), h.terminal...)
}

func (h *engineHarness) displayHistory() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float64, len(h.updates))
	for i, u := range h.updates {
		out[i] = u.DisplayProgress
	}
	return out
}

func TestEngine(t *testing.T) {
	t.Run("push and poll race to one completion", func(t *testing.T) {
		client := &fakeClient{statusPayload: map[string]any{
			"task_id": "t1", "progress": 99.5, "status": "running",
		}}
		push := newFakePushConn()
		h := newEngineHarness(t, client, push)

		if err := h.engine.Start("t1", TypeFile); err != nil {
			t.Fatalf("start: %v", err)
		}

		// Poll crosses the completion heuristic and the push completion event
		// lands right after it.
		h.sched.Advance(2 * time.Second)
		push.emit("task_completed", map[string]any{"task_id": "t1", "progress": 100.0})

		notices := h.notices()
		if len(notices) != 1 {
			t.Fatalf("terminal notices = %d, want 1", len(notices))
		}
		if notices[0].Outcome != Completed {
			t.Errorf("outcome = %v, want Completed", notices[0].Outcome)
		}
		if got := len(h.hist.recorded()); got != 1 {
			t.Errorf("history records = %d, want 1", got)
		}
	})

	t.Run("duplicate terminal push events fire once", func(t *testing.T) {
		client := &fakeClient{statusPayload: map[string]any{"progress": 10.0}}
		push := newFakePushConn()
		h := newEngineHarness(t, client, push)
		h.engine.Start("t1", TypeFile)

		push.emit("task_completed", map[string]any{"task_id": "t1"})
		push.emit("task_completed", map[string]any{"task_id": "t1"})
		push.emit("task_error", map[string]any{"task_id": "t1"})

		if got := len(h.notices()); got != 1 {
			t.Fatalf("terminal notices = %d, want 1", got)
		}
	})

	t.Run("terminal event without status maps to the outcome", func(t *testing.T) {
		client := &fakeClient{}
		push := newFakePushConn()
		h := newEngineHarness(t, client, push)
		h.engine.Start("t1", TypeFile)

		push.emit("task_error", map[string]any{"task_id": "t1", "message": "boom"})

		notices := h.notices()
		if len(notices) != 1 {
			t.Fatalf("terminal notices = %d, want 1", len(notices))
		}
		if notices[0].Outcome != Failed {
			t.Errorf("outcome = %v, want Failed", notices[0].Outcome)
		}
		if notices[0].Final.Status != "error" {
			t.Errorf("final status = %q, want error", notices[0].Final.Status)
		}
	})

	t.Run("start while a task is active is rejected", func(t *testing.T) {
		client := &fakeClient{}
		h := newEngineHarness(t, client, nil)
		h.engine.Start("t1", TypeFile)

		if err := h.engine.Start("t2", TypeFile); !errors.Is(err, shared.ErrTaskActive) {
			t.Fatalf("err = %v, want ErrTaskActive", err)
		}
	})

	t.Run("a second task never sees the first task's callbacks", func(t *testing.T) {
		client := &fakeClient{statusPayload: map[string]any{"progress": 30.0}}
		push := newFakePushConn()
		h := newEngineHarness(t, client, push)

		h.engine.Start("t1", TypeFile)
		push.emit("progress_update", map[string]any{"task_id": "t1", "progress": 30.0})
		push.emit("task_completed", map[string]any{"task_id": "t1"})

		if err := h.engine.Start("t2", TypeScraper); err != nil {
			t.Fatalf("start t2: %v", err)
		}

		// Leftovers from t1: a late push frame and stale timers.
		push.emit("progress_update", map[string]any{"task_id": "t1", "progress": 95.0})

		if got := h.engine.Session().DisplayProgress(); got != 0 {
			t.Errorf("t2 display = %v, want 0", got)
		}
		if got := len(h.notices()); got != 1 {
			t.Errorf("terminal notices = %d, want 1 (t1 only)", got)
		}
		if h.engine.Session().TaskID() != "t2" {
			t.Errorf("active task = %q, want t2", h.engine.Session().TaskID())
		}
	})

	t.Run("push connect failure degrades to polling", func(t *testing.T) {
		client := &fakeClient{statusPayload: map[string]any{"progress": 42.0}}
		push := newFakePushConn()
		push.connectErr = errors.New("dial refused")
		h := newEngineHarness(t, client, push)

		if err := h.engine.Start("t1", TypeFile); err != nil {
			t.Fatalf("start should succeed in poll-only mode: %v", err)
		}
		if got := h.engine.Session().Health().Quality; got != QualityDisconnected {
			t.Errorf("quality = %v, want Disconnected", got)
		}

		h.sched.Advance(2 * time.Second)
		if got := h.engine.Session().DisplayProgress(); got != 42 {
			t.Errorf("display = %v, want 42 from polling", got)
		}
	})

	t.Run("mid-task disconnect advises and keeps polling", func(t *testing.T) {
		client := &fakeClient{statusPayload: map[string]any{"progress": 42.0}}
		push := newFakePushConn()
		h := newEngineHarness(t, client, push)
		h.engine.Start("t1", TypeFile)

		push.dropConnection(errors.New("broken pipe"))

		if got := h.engine.Session().Health().Quality; got != QualityDisconnected {
			t.Errorf("quality = %v, want Disconnected", got)
		}
		if got := len(h.notices()); got != 0 {
			t.Errorf("disconnect must not resolve the task, notices = %d", got)
		}

		h.sched.Advance(2 * time.Second)
		if status, _, _ := client.calls(); status == 0 {
			t.Error("polling should continue after the push channel drops")
		}

		// Reconnect asks the server to replay the current status. One request
		// was already sent at Start, so a second must appear now.
		push.reconnect()
		requests := 0
		push.mu.Lock()
		for _, e := range push.sent {
			if e == "request_task_status" {
				requests++
			}
		}
		push.mu.Unlock()
		if requests < 2 {
			t.Errorf("status re-sync requests = %d, want at least 2", requests)
		}
	})

	t.Run("stall simulation resolves back to real progress", func(t *testing.T) {
		client := &fakeClient{statusPayload: map[string]any{"progress": 40.0}}
		push := newFakePushConn()
		h := newEngineHarness(t, client, push)
		h.engine.Start("t1", TypeFile)

		// Polls keep returning the same 40%; the watchdog stalls the task and
		// the simulator creeps the display upward.
		h.sched.Advance(30 * time.Second)
		if h.engine.Session().Status() != Stalled {
			t.Fatalf("status = %v, want Stalled", h.engine.Session().Status())
		}
		simulated := h.engine.Session().DisplayProgress()
		if simulated <= 40 {
			t.Fatalf("display = %v, want simulated value above 40", simulated)
		}

		// Real progress resumes over push, above anything the simulator could
		// have reached (its ceiling here is 75).
		push.emit("progress_update", map[string]any{"task_id": "t1", "progress": 80.0})
		if h.engine.Session().Status() != Running {
			t.Errorf("status = %v, want Running", h.engine.Session().Status())
		}
		if got := h.engine.Session().DisplayProgress(); got != 80 {
			t.Errorf("display = %v, want 80", got)
		}

		// Display was monotonic throughout.
		hist := h.displayHistory()
		for i := 1; i < len(hist); i++ {
			if hist[i] < hist[i-1] {
				t.Fatalf("display regressed at %d: %v -> %v", i, hist[i-1], hist[i])
			}
		}
	})

	t.Run("cancel routes through the coordinator", func(t *testing.T) {
		client := &fakeClient{statusPayload: map[string]any{"progress": 10.0}}
		push := newFakePushConn()
		h := newEngineHarness(t, client, push)
		h.engine.Start("t1", TypeFile)

		if err := h.engine.Cancel("t1"); err != nil {
			t.Fatalf("cancel: %v", err)
		}

		h.sched.Advance(3 * time.Second)

		notices := h.notices()
		if len(notices) != 1 || notices[0].Outcome != Cancelled {
			t.Fatalf("expected one Cancelled notice, got %v", notices)
		}
		if _, cancels, _ := client.calls(); cancels != 1 {
			t.Errorf("REST cancels = %d, want 1", cancels)
		}
	})

	t.Run("Close stops the push channel", func(t *testing.T) {
		client := &fakeClient{}
		push := newFakePushConn()
		h := newEngineHarness(t, client, push)
		h.engine.Start("t1", TypeFile)

		if err := h.engine.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		push.mu.Lock()
		closed := push.closed
		push.mu.Unlock()
		if !closed {
			t.Error("push channel should be closed")
		}
	})

	t.Run("empty task id is rejected", func(t *testing.T) {
		h := newEngineHarness(t, &fakeClient{}, nil)
		if err := h.engine.Start("", TypeFile); !errors.Is(err, shared.ErrMissingArgument) {
			t.Fatalf("err = %v, want ErrMissingArgument", err)
		}
	})
}
