package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes events to an io.Writer in either a human-readable text
// format or machine-readable JSONL.
//
// Text:
//
//	[node_completed] execution=exec-1 step=2 node=decision-1
//
// JSON (one object per line):
//
//	{"executionID":"exec-1","workflowID":"wf-1","step":2,"nodeID":"decision-1","msg":"node_completed","meta":null}
type LogEmitter struct {
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
	if l.jsonMode {
		l.emitJSON(event)
		return
	}
	l.emitText(event)
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		ExecutionID string         `json:"executionID"`
		WorkflowID  string         `json:"workflowID"`
		Step        int            `json:"step"`
		NodeID      string         `json:"nodeID"`
		Msg         string         `json:"msg"`
		Meta        map[string]any `json:"meta"`
	}{
		ExecutionID: event.ExecutionID,
		WorkflowID:  event.WorkflowID,
		Step:        event.Step,
		NodeID:      event.NodeID,
		Msg:         event.Msg,
		Meta:        event.Meta,
	})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] execution=%s step=%d node=%s",
		event.Msg, event.ExecutionID, event.Step, event.NodeID)
	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}
	fmt.Fprint(l.writer, "\n")
}
