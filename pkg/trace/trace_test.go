package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriter_Emit(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "test-run-1")

	if err := tw.EmitStepStart("TC-1", 2, "Fill"); err != nil {
		t.Fatalf("Emit error: %v", err)
	}

	var evt Event
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("JSON unmarshal: %v (raw: %s)", err, buf.String())
	}
	if evt.Type != EventStepStart {
		t.Errorf("type = %q, want step_start", evt.Type)
	}
	if evt.RunID != "test-run-1" {
		t.Errorf("run_id = %q", evt.RunID)
	}
	if evt.CaseID != "TC-1" {
		t.Errorf("case_id = %q", evt.CaseID)
	}
	if evt.Data["index"] != float64(2) {
		t.Errorf("index = %v", evt.Data["index"])
	}
}

func TestWriter_EmitStepComplete(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")

	if err := tw.EmitStepComplete("TC-1", 3, "Failed", "expected \"Welcome\" not found", 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	var evt Event
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Data["status"] != "Failed" {
		t.Errorf("status = %v", evt.Data["status"])
	}
	if evt.Data["duration"] != "50ms" {
		t.Errorf("duration = %v", evt.Data["duration"])
	}
	if !strings.Contains(evt.Data["observed"].(string), "Welcome") {
		t.Errorf("observed = %v", evt.Data["observed"])
	}
}

func TestWriter_NilDiscards(t *testing.T) {
	var tw *Writer
	if err := tw.EmitCommit("TC-1", 1); err != nil {
		t.Fatalf("nil writer: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if tw.RunID() != "" {
		t.Error("nil writer has no run id")
	}
}

func TestFileWriterAppendsAndReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")

	for _, run := range []string{"r1", "r2"} {
		tw, err := NewFileWriter(path, run)
		if err != nil {
			t.Fatal(err)
		}
		_ = tw.EmitRunStart("TC-1", 0, 1)
		_ = tw.EmitCommitRetry("TC-1", 1, errors.New("disk full"))
		_ = tw.EmitCaseBlocked("TC-1", []int{4})
		_ = tw.EmitRunComplete("TC-1", "blocked", 0, time.Second)
		if err := tw.Close(); err != nil {
			t.Fatal(err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	events, err := ReadEvents(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 8 {
		t.Fatalf("got %d events, want 8", len(events))
	}
	if events[4].RunID != "r2" || events[4].Type != EventRunStart {
		t.Errorf("events[4] = %+v", events[4])
	}
	if events[1].Data["error"] != "disk full" {
		t.Errorf("retry error = %v", events[1].Data["error"])
	}
}

func TestReadEventsReportsLine(t *testing.T) {
	_, err := ReadEvents(strings.NewReader("{\"type\":\"run_start\"}\n\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "trace line 3") {
		t.Fatalf("err = %v", err)
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "r")
	if err := tw.SetRedactions([]RedactionRule{{Pattern: `password=\S+`, Replace: "password=***"}}); err != nil {
		t.Fatal(err)
	}
	data := map[string]any{"observed": "typed password=s3cret into #pw", "index": 3}
	if err := tw.Emit(EventStepComplete, "TC-1", data); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "s3cret") {
		t.Errorf("secret leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "password=***") {
		t.Errorf("missing replacement: %s", buf.String())
	}
	if data["observed"] != "typed password=s3cret into #pw" {
		t.Error("caller's data was modified")
	}

	if err := tw.SetRedactions([]RedactionRule{{Pattern: "("}}); err == nil {
		t.Error("expected invalid pattern error")
	}
}
