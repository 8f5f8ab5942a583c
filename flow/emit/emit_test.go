package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEvent_Terminal(t *testing.T) {
	tests := []struct {
		typ  Type
		want bool
	}{
		{NodeStarted, false},
		{NodeStreamDelta, false},
		{NodeCompleted, false},
		{NodeFailed, false},
		{RunCompleted, true},
		{RunFailed, true},
		{RunCancelled, true},
	}
	for _, tt := range tests {
		if got := (Event{Type: tt.typ}).Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestBufferedEmitter(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{Type: NodeStarted, RunID: "r1", Seq: 1, NodeID: "a"})
	b.Emit(Event{Type: NodeCompleted, RunID: "r1", Seq: 2, NodeID: "a"})
	b.Emit(Event{Type: NodeStarted, RunID: "r1", Seq: 3, NodeID: "b"})
	b.Emit(Event{Type: RunCompleted, RunID: "r2", Seq: 1})

	t.Run("history is per run in emission order", func(t *testing.T) {
		h := b.History("r1")
		if len(h) != 3 {
			t.Fatalf("expected 3 events, got %d", len(h))
		}
		for i, ev := range h {
			if ev.Seq != int64(i+1) {
				t.Errorf("event %d out of order: seq %d", i, ev.Seq)
			}
		}
		if len(b.History("r2")) != 1 {
			t.Errorf("expected 1 event for r2")
		}
		if len(b.History("unknown")) != 0 {
			t.Errorf("expected no events for an unknown run")
		}
	})

	t.Run("filters combine with AND", func(t *testing.T) {
		h := b.HistoryWithFilter("r1", Filter{NodeID: "a"})
		if len(h) != 2 {
			t.Errorf("node filter: expected 2, got %d", len(h))
		}
		h = b.HistoryWithFilter("r1", Filter{Type: NodeStarted})
		if len(h) != 2 {
			t.Errorf("type filter: expected 2, got %d", len(h))
		}
		h = b.HistoryWithFilter("r1", Filter{NodeID: "a", Type: NodeStarted})
		if len(h) != 1 {
			t.Errorf("combined filter: expected 1, got %d", len(h))
		}
	})

	t.Run("clear one run", func(t *testing.T) {
		b.Clear("r1")
		if len(b.History("r1")) != 0 {
			t.Error("r1 should be cleared")
		}
		if len(b.History("r2")) != 1 {
			t.Error("r2 should survive")
		}
	})

	t.Run("clear everything", func(t *testing.T) {
		b.Clear("")
		if len(b.History("r2")) != 0 {
			t.Error("expected everything cleared")
		}
	})
}

func TestLogEmitter_Text(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, false)

	l.Emit(Event{Type: NodeCompleted, RunID: "run-x", Seq: 4, NodeID: "m", Output: map[string]any{"text": "hi"}})
	l.Emit(Event{Type: RunFailed, RunID: "run-x", Seq: 5, Err: "boom"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "[node_completed] run=run-x seq=4 node=m") {
		t.Errorf("unexpected line: %q", lines[0])
	}
	if !strings.Contains(lines[0], `output={"text":"hi"}`) {
		t.Errorf("expected output in line: %q", lines[0])
	}
	if !strings.Contains(lines[1], `error="boom"`) {
		t.Errorf("expected error in line: %q", lines[1])
	}
}

func TestLogEmitter_JSONL(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, true)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.Emit(Event{Type: NodeStreamDelta, RunID: "run-y", Seq: 2, Time: now, NodeID: "m", Delta: "tok"})

	var decoded Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if decoded.Type != NodeStreamDelta || decoded.Delta != "tok" || decoded.Seq != 2 {
		t.Errorf("round-trip mismatch: %+v", decoded)
	}
	if !decoded.Time.Equal(now) {
		t.Errorf("time mismatch: %v", decoded.Time)
	}
}

func TestMulti(t *testing.T) {
	a := NewBufferedEmitter()
	b := NewBufferedEmitter()
	m := Multi(a, nil, b)

	m.Emit(Event{Type: NodeStarted, RunID: "r", Seq: 1})

	if len(a.History("r")) != 1 || len(b.History("r")) != 1 {
		t.Error("expected both emitters to receive the event")
	}
}
