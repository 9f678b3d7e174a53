package emit

// Emitter receives observability events from the engine and the ingestion
// pipeline.
//
// Implementations should be:
//   - Non-blocking: never slow down step progression
//   - Thread-safe: events arrive concurrently from many executions
//   - Resilient: a failing backend must not crash the workflow
//
// Emit must not panic; internal failures should be swallowed or logged by
// the implementation itself.
type Emitter interface {
	Emit(event Event)
}

// MultiEmitter fans every event out to several emitters in order.
type MultiEmitter []Emitter

// Emit forwards the event to each wrapped emitter.
func (m MultiEmitter) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
