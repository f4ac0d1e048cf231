package track

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const pingHistorySize = 5

// PushSender is the outbound half of the push channel, the only part the
// health monitor needs.
type PushSender interface {
	Send(event string, payload map[string]any) error
}

// HealthMonitor measures push-channel liveness with periodic heartbeat
// round-trips. It only ever updates the session's transport health; task
// status is never touched from here.
type HealthMonitor struct {
	session *TaskSession
	push    PushSender
	sched   Scheduler
	cfg     Config
	logger  *log.Logger

	mu           sync.Mutex
	handle       Handle
	pendingSince time.Time
	samples      []time.Duration
	disconnected bool
}

// NewHealthMonitor wires the monitor to the push channel. push may be nil,
// in which case the monitor only tracks disconnection state.
func NewHealthMonitor(session *TaskSession, push PushSender, sched Scheduler, cfg Config, logger *log.Logger) *HealthMonitor {
	return &HealthMonitor{session: session, push: push, sched: sched, cfg: cfg, logger: logger}
}

// Start begins heartbeating, replacing any previous loop.
func (h *HealthMonitor) Start() {
	if h.push == nil {
		return
	}
	h.mu.Lock()
	if h.handle != nil {
		h.handle.Stop()
	}
	h.handle = h.sched.Repeat(h.cfg.HeartbeatInterval, h.beat)
	h.mu.Unlock()
}

// Stop halts heartbeating. Idempotent.
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	if h.handle != nil {
		h.handle.Stop()
		h.handle = nil
	}
	h.pendingSince = time.Time{}
	h.mu.Unlock()
}

func (h *HealthMonitor) beat() {
	now := h.sched.Now()
	h.mu.Lock()
	h.pendingSince = now
	h.mu.Unlock()

	err := h.push.Send("ping_from_client", map[string]any{
		"client_timestamp": now.UnixMilli(),
	})
	if err != nil {
		h.logger.Debug("heartbeat send failed", "err", err)
	}
}

// Pong records a heartbeat response and reclassifies link quality.
func (h *HealthMonitor) Pong(_ map[string]any) {
	now := h.sched.Now()

	h.mu.Lock()
	if h.pendingSince.IsZero() {
		h.mu.Unlock()
		return
	}
	rtt := now.Sub(h.pendingSince)
	h.pendingSince = time.Time{}
	h.disconnected = false
	h.samples = append(h.samples, rtt)
	if len(h.samples) > pingHistorySize {
		h.samples = h.samples[len(h.samples)-pingHistorySize:]
	}
	health := TransportHealth{
		Quality:     classifyLatency(rtt),
		PingHistory: append([]time.Duration(nil), h.samples...),
	}
	h.mu.Unlock()

	h.session.setHealth(health)
}

// MarkDisconnected flags the push link as down. Disconnection is a
// connectivity advisory, never a task failure.
func (h *HealthMonitor) MarkDisconnected() {
	h.mu.Lock()
	h.disconnected = true
	health := TransportHealth{
		Quality:     QualityDisconnected,
		PingHistory: append([]time.Duration(nil), h.samples...),
	}
	h.mu.Unlock()

	h.session.setHealth(health)
}

// MarkConnected restores classification from the retained samples after a
// reconnect.
func (h *HealthMonitor) MarkConnected() {
	h.mu.Lock()
	h.disconnected = false
	quality := QualityUnknown
	if n := len(h.samples); n > 0 {
		quality = classifyLatency(h.samples[n-1])
	}
	health := TransportHealth{
		Quality:     quality,
		PingHistory: append([]time.Duration(nil), h.samples...),
	}
	h.mu.Unlock()

	h.session.setHealth(health)
}

func classifyLatency(rtt time.Duration) TransportQuality {
	switch {
	case rtt < 100*time.Millisecond:
		return QualityExcellent
	case rtt < 300*time.Millisecond:
		return QualityGood
	default:
		return QualityPoor
	}
}
