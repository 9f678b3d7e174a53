package emit

import (
	"github.com/rs/zerolog"
)

// ZerologEmitter writes events through a zerolog.Logger as structured log
// records, one per event.
//
// Failure events (Msg ending in "_failed" or carrying an "error" meta entry)
// log at error level; everything else logs at info.
//
// Example:
//
//	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
//	emitter := emit.NewZerologEmitter(logger)
type ZerologEmitter struct {
	logger zerolog.Logger
}

// NewZerologEmitter creates an emitter over the given logger.
func NewZerologEmitter(logger zerolog.Logger) *ZerologEmitter {
	return &ZerologEmitter{logger: logger}
}

// Emit logs the event with its fields and metadata as structured keys.
func (z *ZerologEmitter) Emit(event Event) {
	errMsg, isError := event.Meta["error"].(string)

	var entry *zerolog.Event
	if isError || event.Msg == MsgExecutionFailed {
		entry = z.logger.Error()
	} else {
		entry = z.logger.Info()
	}

	if event.ExecutionID != "" {
		entry = entry.Str("execution_id", event.ExecutionID)
	}
	if event.WorkflowID != "" {
		entry = entry.Str("workflow_id", event.WorkflowID)
	}
	if event.Step > 0 {
		entry = entry.Int("step", event.Step)
	}
	if event.NodeID != "" {
		entry = entry.Str("node_id", event.NodeID)
	}
	if errMsg != "" {
		entry = entry.Str("error", errMsg)
	}
	for k, v := range event.Meta {
		if k == "error" {
			continue
		}
		entry = entry.Interface(k, v)
	}

	entry.Msg(event.Msg)
}
