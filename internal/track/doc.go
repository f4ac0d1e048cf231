// Package track keeps a single on-screen task's status consistent across two
// unreliable update paths: a push channel (WebSocket events) and a pull
// channel (periodic status polls).
//
// # Core Pieces
//
//  1. [TaskSession] : the one shared mutable record (task id, status, display
//     progress, single-fire guards, transport health). All other components
//     read and write it through guarded accessors.
//  2. [Reconciler] : single entry point for snapshots from either channel.
//     Normalizes heterogeneous payloads, enforces the ordering rule, rejects
//     stale poll responses, and detects stalls.
//  3. [Simulator] : synthesizes display-only progress while the task sits at
//     a known plateau, never overtaking real updates.
//  4. [Arbiter] : the single authority for terminal transitions. Guarantees
//     the completion/error/cancellation side effects run exactly once no
//     matter how many channels or safety timers report it.
//  5. [Poller] : adaptive status polling with warm-up, progress-band
//     intervals, exponential backoff with jitter, and liveness-ping
//     escalation.
//  6. [HealthMonitor] : heartbeat round-trips classifying push-link quality.
//  7. [Canceller] : push-first cancellation with a REST fallback, latched so
//     at most one fallback request is issued per task.
//
// # Progress Reporting
//
// Subscribers receive an [Update] on every accepted change and exactly one
// [TerminalNotice] per task. Updates are delivered synchronously; render
// layers must not call back into the engine from a subscriber.
//
// # Timers
//
// Every timer goes through the [Scheduler] abstraction and returns a
// [Handle]. Starting a new task stops all handles from the previous task, so
// no callback from task A can ever mutate task B's session. Callbacks
// additionally capture the session epoch at arm time and no-op on mismatch.
package track
