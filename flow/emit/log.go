package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes events to an io.Writer in one of two formats:
//
//   - text (default): one human-readable line per event,
//     `[node_completed] run=run-a1b2 seq=4 node=model-1`
//   - JSONL: one JSON object per line, suitable for ingestion
//
// Writes are serialized with a mutex so concurrent stream deltas don't
// interleave mid-line.
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter. A nil writer defaults to stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

// Emit writes one event in the configured format.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonMode {
		data, err := json.Marshal(event)
		if err != nil {
			fmt.Fprintf(l.writer, "{\"error\":\"marshal event: %v\"}\n", err)
			return
		}
		fmt.Fprintf(l.writer, "%s\n", data)
		return
	}

	fmt.Fprintf(l.writer, "[%s] run=%s seq=%d", event.Type, event.RunID, event.Seq)
	if event.NodeID != "" {
		fmt.Fprintf(l.writer, " node=%s", event.NodeID)
	}
	if event.Delta != "" {
		fmt.Fprintf(l.writer, " delta=%q", event.Delta)
	}
	if event.Output != nil {
		if data, err := json.Marshal(event.Output); err == nil {
			fmt.Fprintf(l.writer, " output=%s", data)
		}
	}
	if event.Err != "" {
		fmt.Fprintf(l.writer, " error=%q", event.Err)
	}
	fmt.Fprintln(l.writer)
}
