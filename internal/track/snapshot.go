package track

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/LosAICode/neurogen-client/internal/shared"
)

// Source identifies which channel produced a snapshot.
type Source int

const (
	SourcePush Source = iota
	SourcePoll
)

func (s Source) String() string {
	if s == SourcePush {
		return "push"
	}
	return "poll"
}

// TaskType selects the endpoint template for a job. It does not affect core
// tracking logic otherwise.
type TaskType int

const (
	TypeFile TaskType = iota
	TypeScraper
	TypePlaylist
	TypeAcademic
	TypePdf
)

func (t TaskType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeScraper:
		return "scraper"
	case TypePlaylist:
		return "playlist"
	case TypeAcademic:
		return "academic"
	case TypePdf:
		return "pdf"
	default:
		return "unknown"
	}
}

// ParseTaskType resolves a user-supplied task type name.
func ParseTaskType(s string) (TaskType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "process":
		return TypeFile, nil
	case "scraper", "scrape":
		return TypeScraper, nil
	case "playlist":
		return TypePlaylist, nil
	case "academic":
		return TypeAcademic, nil
	case "pdf":
		return TypePdf, nil
	default:
		return TypeFile, shared.ErrInvalidTaskType
	}
}

// StatusPath returns the status endpoint for the given task id.
func (t TaskType) StatusPath(taskID string) string {
	switch t {
	case TypeScraper:
		return "/api/scrape2/status/" + taskID
	case TypePdf:
		return "/api/pdf/status/" + taskID
	default:
		return "/api/status/" + taskID
	}
}

// CancelPath returns the cancel endpoint for the given task id.
func (t TaskType) CancelPath(taskID string) string {
	switch t {
	case TypeScraper:
		return "/api/scrape2/cancel/" + taskID
	case TypePdf:
		return "/api/pdf/cancel/" + taskID
	default:
		return "/api/cancel/" + taskID
	}
}

// SubmitPath returns the job submission endpoint.
func (t TaskType) SubmitPath() string {
	switch t {
	case TypeScraper:
		return "/api/scrape2/start"
	case TypePlaylist:
		return "/api/playlist/start"
	case TypeAcademic:
		return "/api/academic/start"
	case TypePdf:
		return "/api/pdf/start"
	default:
		return "/api/process"
	}
}

// Status is the authoritative lifecycle state of the tracked task.
type Status int

const (
	Idle Status = iota
	Starting
	Running
	Stalled
	Completing
	Completed
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stalled:
		return "stalled"
	case Completing:
		return "completing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is a terminal outcome.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// TaskSnapshot is a normalized, timestamped view of task status from one
// channel. Progress is 0..100, or negative when the payload carried none.
// ReceivedAt is stamped at receipt because server-side timestamps are not
// comparable across channels.
type TaskSnapshot struct {
	TaskID     string
	Progress   float64
	Message    string
	Status     string
	Stats      map[string]any
	OutputRef  string
	ReceivedAt time.Time
	Source     Source
}

// HasProgress reports whether the snapshot carried a progress value.
func (s TaskSnapshot) HasProgress() bool {
	return s.Progress >= 0
}

// IsZero reports whether the snapshot is the zero value.
func (s TaskSnapshot) IsZero() bool {
	return s.TaskID == "" && s.ReceivedAt.IsZero()
}

// TerminalStatus reports whether the server-reported status names a terminal
// outcome. "success" alone is not terminal; it only completes a task in
// combination with an output reference (see the poll heuristic).
func (s TaskSnapshot) TerminalStatus() bool {
	switch s.Status {
	case "completed", "complete", "failed", "error", "cancelled", "canceled":
		return true
	}
	return false
}

// Outcome maps the server-reported status onto a terminal Status.
func (s TaskSnapshot) Outcome() Status {
	switch s.Status {
	case "failed", "error":
		return Failed
	case "cancelled", "canceled":
		return Cancelled
	default:
		return Completed
	}
}

// NormalizeSnapshot converts a raw payload from either channel into a
// TaskSnapshot. Progress is accepted as a number or numeric string; when
// absent it is derived from a processed_count/total_count ratio found at the
// top level or inside the stats map. fallbackTaskID is used when the payload
// carries no task_id of its own.
func NormalizeSnapshot(fallbackTaskID string, payload map[string]any, src Source, now time.Time) TaskSnapshot {
	snap := TaskSnapshot{
		TaskID:     fallbackTaskID,
		Progress:   -1,
		ReceivedAt: now,
		Source:     src,
	}
	if payload == nil {
		return snap
	}

	if id, ok := payload["task_id"].(string); ok && id != "" {
		snap.TaskID = id
	}
	if msg, ok := payload["message"].(string); ok {
		snap.Message = msg
	}
	if st, ok := payload["status"].(string); ok {
		snap.Status = strings.ToLower(strings.TrimSpace(st))
	}
	if out, ok := payload["output_file"].(string); ok {
		snap.OutputRef = out
	}
	if stats, ok := payload["stats"].(map[string]any); ok {
		snap.Stats = stats
	}

	if v, ok := numberFrom(payload["progress"]); ok {
		snap.Progress = clampProgress(v)
	} else if v, ok := ratioFrom(payload); ok {
		snap.Progress = clampProgress(v)
	} else if snap.Stats != nil {
		if v, ok := ratioFrom(snap.Stats); ok {
			snap.Progress = clampProgress(v)
		}
	}

	return snap
}

func clampProgress(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// numberFrom coerces the payload value shapes both channels are known to
// emit: JSON numbers, Go numerics, and numeric strings.
func numberFrom(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func ratioFrom(m map[string]any) (float64, bool) {
	processed, ok := numberFrom(m["processed_count"])
	if !ok {
		return 0, false
	}
	total, ok := numberFrom(m["total_count"])
	if !ok || total <= 0 {
		return 0, false
	}
	return processed / total * 100, true
}
