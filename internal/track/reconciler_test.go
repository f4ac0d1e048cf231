package track

import (
	"testing"
	"time"
)

func TestReconcilerAccept(t *testing.T) {
	t.Run("display progress never regresses", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")

		h.rec.Accept(h.snap("t1", 50, SourcePush))
		if got := h.session.DisplayProgress(); got != 50 {
			t.Fatalf("display = %v, want 50", got)
		}

		// A lower value arriving later is a regression and is dropped.
		h.sched.Advance(time.Second)
		h.rec.Accept(h.snap("t1", 35, SourcePoll))
		if got := h.session.DisplayProgress(); got != 50 {
			t.Errorf("display = %v after regressed snapshot, want 50", got)
		}
		if last, _ := h.session.LastSnapshot(); last.Progress != 50 {
			t.Errorf("last accepted progress = %v, want 50", last.Progress)
		}
	})

	t.Run("message-only frames keep the accepted progress", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")
		h.rec.Accept(h.snap("t1", 92, SourcePush))

		// Status message without a progress value.
		note := h.snap("t1", -1, SourcePush)
		note.Message = "writing output"
		h.rec.Accept(note)

		last, _ := h.session.LastSnapshot()
		if last.Progress != 92 {
			t.Fatalf("cached progress = %v after message-only frame, want 92", last.Progress)
		}
		if last.Message != "writing output" {
			t.Errorf("cached message = %q", last.Message)
		}

		// The regression check must still see 92, not the wiped cache.
		h.sched.Advance(time.Second)
		h.rec.Accept(h.snap("t1", 60, SourcePoll))

		if last, _ := h.session.LastSnapshot(); last.Progress != 92 {
			t.Errorf("cached progress = %v after regressed poll, want 92", last.Progress)
		}
		if got := h.session.DisplayProgress(); got != 92 {
			t.Errorf("display = %v, want 92", got)
		}
	})

	t.Run("stale poll snapshots are dropped", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")

		h.sched.Advance(10 * time.Second)
		h.rec.Accept(h.snap("t1", 40, SourcePush))

		// Poll result that left the server before the push event arrived.
		stale := TaskSnapshot{
			TaskID:     "t1",
			Progress:   60,
			ReceivedAt: h.sched.Now().Add(-5 * time.Second),
			Source:     SourcePoll,
		}
		h.rec.Accept(stale)

		if got := h.session.DisplayProgress(); got != 40 {
			t.Errorf("display = %v, want 40 (stale poll must not apply)", got)
		}
	})

	t.Run("push snapshots are not subject to the staleness check", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")

		h.sched.Advance(10 * time.Second)
		h.rec.Accept(h.snap("t1", 40, SourcePoll))

		newer := TaskSnapshot{
			TaskID:     "t1",
			Progress:   55,
			ReceivedAt: h.sched.Now().Add(-time.Second),
			Source:     SourcePush,
		}
		h.rec.Accept(newer)

		if got := h.session.DisplayProgress(); got != 55 {
			t.Errorf("display = %v, want 55", got)
		}
	})

	t.Run("snapshots for other tasks are dropped", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")

		h.rec.Accept(h.snap("other", 90, SourcePush))
		if got := h.session.DisplayProgress(); got != 0 {
			t.Errorf("display = %v, want 0", got)
		}
	})

	t.Run("terminal status routes to the arbiter", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")

		snap := h.snap("t1", 80, SourcePush)
		snap.Status = "failed"
		h.rec.Accept(snap)

		notices := h.notices()
		if len(notices) != 1 {
			t.Fatalf("terminal notices = %d, want 1", len(notices))
		}
		if notices[0].Outcome != Failed {
			t.Errorf("outcome = %v, want Failed", notices[0].Outcome)
		}
	})

	t.Run("poll heuristic completes at 99 percent", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")

		h.rec.Accept(h.snap("t1", 99.2, SourcePoll))

		notices := h.notices()
		if len(notices) != 1 || notices[0].Outcome != Completed {
			t.Fatalf("expected one Completed notice, got %v", notices)
		}
	})

	t.Run("poll heuristic completes on success with output", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")

		snap := h.snap("t1", 80, SourcePoll)
		snap.Status = "success"
		snap.OutputRef = "/out/result.json"
		h.rec.Accept(snap)

		notices := h.notices()
		if len(notices) != 1 {
			t.Fatalf("terminal notices = %d, want 1", len(notices))
		}
		if notices[0].Final.OutputRef != "/out/result.json" {
			t.Errorf("final output = %q", notices[0].Final.OutputRef)
		}
	})

	t.Run("heuristic does not apply to push snapshots", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")

		h.rec.Accept(h.snap("t1", 99.5, SourcePush))

		if len(h.notices()) != 0 {
			t.Fatal("push snapshot at 99.5 must not complete the task")
		}
		if h.session.Status() != Running {
			t.Errorf("status = %v, want Running", h.session.Status())
		}
	})

	t.Run("first snapshot moves Starting to Running", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")

		if h.session.Status() != Starting {
			t.Fatalf("status = %v, want Starting", h.session.Status())
		}
		h.rec.Accept(h.snap("t1", 5, SourcePush))
		if h.session.Status() != Running {
			t.Errorf("status = %v, want Running", h.session.Status())
		}
	})

	t.Run("nothing is accepted after completion fires", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")
		h.arbiter.Signal("t1", Completed, h.snap("t1", 100, SourcePush), false)

		h.rec.Accept(h.snap("t1", 10, SourcePoll))
		if h.session.Status() != Idle {
			t.Errorf("status = %v, want Idle", h.session.Status())
		}
	})
}

func TestReconcilerStall(t *testing.T) {
	t.Run("stall transition after quiet period", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")
		h.rec.Accept(h.snap("t1", 40, SourcePush))

		h.sched.Advance(h.cfg.StallAfter - time.Second)
		h.rec.CheckStall()
		if h.session.Status() != Running {
			t.Fatalf("stalled too early: %v", h.session.Status())
		}

		h.sched.Advance(2 * time.Second)
		h.rec.CheckStall()
		if h.session.Status() != Stalled {
			t.Fatalf("status = %v, want Stalled", h.session.Status())
		}
	})

	t.Run("repeated identical polls do not defer the stall", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")
		h.rec.Accept(h.snap("t1", 40, SourcePoll))

		// Same progress keeps arriving; the task is still stuck.
		for i := 0; i < 3; i++ {
			h.sched.Advance(2 * time.Second)
			h.rec.Accept(h.snap("t1", 40, SourcePoll))
		}

		h.rec.CheckStall()
		if h.session.Status() != Stalled {
			t.Fatalf("status = %v, want Stalled despite fresh identical polls", h.session.Status())
		}
	})

	t.Run("higher progress exits the stall", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")
		h.rec.Accept(h.snap("t1", 40, SourcePush))

		h.sched.Advance(h.cfg.StallAfter + time.Second)
		h.rec.CheckStall()
		if h.session.Status() != Stalled {
			t.Fatalf("status = %v, want Stalled", h.session.Status())
		}

		h.rec.Accept(h.snap("t1", 41, SourcePush))
		if h.session.Status() != Running {
			t.Errorf("status = %v, want Running after progress", h.session.Status())
		}
	})

	t.Run("equal progress does not exit the stall", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.begin("t1")
		h.rec.Accept(h.snap("t1", 40, SourcePush))

		h.sched.Advance(h.cfg.StallAfter + time.Second)
		h.rec.CheckStall()

		h.rec.Accept(h.snap("t1", 40, SourcePoll))
		if h.session.Status() != Stalled {
			t.Errorf("status = %v, want Stalled", h.session.Status())
		}
	})
}
