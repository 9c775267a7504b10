// Package trace implements the orchestrator's append-only JSONL audit trail.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType enumerates all trace event types.
type EventType string

const (
	EventRunStart         EventType = "run_start"
	EventRunComplete      EventType = "run_complete"
	EventStepStart        EventType = "step_start"
	EventStepComplete     EventType = "step_complete"
	EventCheckpointCommit EventType = "checkpoint_commit"
	EventCommitRetry      EventType = "commit_retry"
	EventCaseBlocked      EventType = "case_blocked"
	EventStepReopened     EventType = "step_reopened"
)

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	CaseID    string         `json:"case_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Writer writes trace events to an append-only JSONL stream. A nil *Writer
// discards events.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	runID  string
	enc    *json.Encoder
	now    func() time.Time
	redact []compiledRedaction
}

// NewWriter creates a trace writer that writes to the given io.Writer.
func NewWriter(w io.Writer, runID string) *Writer {
	return &Writer{
		w:     w,
		runID: runID,
		enc:   json.NewEncoder(w),
		now:   time.Now,
	}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	tw := NewWriter(f, runID)
	tw.closer = f
	return tw, nil
}

// RunID returns the run the writer tags events with.
func (tw *Writer) RunID() string {
	if tw == nil {
		return ""
	}
	return tw.runID
}

// Close closes the underlying file, if the writer owns one.
func (tw *Writer) Close() error {
	if tw == nil || tw.closer == nil {
		return nil
	}
	return tw.closer.Close()
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, caseID string, data map[string]any) error {
	if tw == nil {
		return nil
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()

	return tw.enc.Encode(Event{
		Type:      eventType,
		Timestamp: tw.now().UTC(),
		RunID:     tw.runID,
		CaseID:    caseID,
		Data:      redactData(data, tw.redact),
	})
}

// EmitRunStart emits a run_start event.
func (tw *Writer) EmitRunStart(caseID string, revision int64, resumeAt int) error {
	return tw.Emit(EventRunStart, caseID, map[string]any{
		"revision":  revision,
		"resume_at": resumeAt,
	})
}

// EmitRunComplete emits a run_complete event.
func (tw *Writer) EmitRunComplete(caseID, outcome string, revision int64, duration time.Duration) error {
	return tw.Emit(EventRunComplete, caseID, map[string]any{
		"outcome":  outcome,
		"revision": revision,
		"duration": duration.String(),
	})
}

// EmitStepStart emits a step_start event.
func (tw *Writer) EmitStepStart(caseID string, index int, kind string) error {
	return tw.Emit(EventStepStart, caseID, map[string]any{
		"index": index,
		"kind":  kind,
	})
}

// EmitStepComplete emits a step_complete event.
func (tw *Writer) EmitStepComplete(caseID string, index int, status, observed string, duration time.Duration) error {
	data := map[string]any{
		"index":    index,
		"status":   status,
		"duration": duration.String(),
	}
	if observed != "" {
		data["observed"] = observed
	}
	return tw.Emit(EventStepComplete, caseID, data)
}

// EmitCommit emits a checkpoint_commit event.
func (tw *Writer) EmitCommit(caseID string, revision int64) error {
	return tw.Emit(EventCheckpointCommit, caseID, map[string]any{"revision": revision})
}

// EmitCommitRetry emits a commit_retry event.
func (tw *Writer) EmitCommitRetry(caseID string, attempt int, err error) error {
	return tw.Emit(EventCommitRetry, caseID, map[string]any{
		"attempt": attempt,
		"error":   err.Error(),
	})
}

// EmitCaseBlocked emits a case_blocked event listing the unclassified steps.
func (tw *Writer) EmitCaseBlocked(caseID string, indices []int) error {
	return tw.Emit(EventCaseBlocked, caseID, map[string]any{"indices": indices})
}

// EmitStepReopened emits a step_reopened event.
func (tw *Writer) EmitStepReopened(caseID string, index int) error {
	return tw.Emit(EventStepReopened, caseID, map[string]any{"index": index})
}

// ReadEvents decodes a JSONL trace stream.
func ReadEvents(r io.Reader) ([]Event, error) {
	var events []Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("trace line %d: %w", line, err)
		}
		events = append(events, e)
	}
	return events, sc.Err()
}
