package ai

// Stream event types. A stream terminates with exactly one of done, error,
// or cancelled.
const (
	EventDelta     = "delta"
	EventDone      = "done"
	EventError     = "error"
	EventCancelled = "cancelled"
)

// StreamEvent is a chunk from a streaming operation. Delta carries the new
// text and Accumulated the full text received so far.
type StreamEvent struct {
	Type        string `json:"type"`
	Delta       string `json:"delta,omitempty"`
	Accumulated string `json:"accumulated,omitempty"`
	Result      string `json:"result,omitempty"` // final text (type="done")
	Err         *Error `json:"error,omitempty"`  // set on error/cancelled
}

// Collect drains a stream, invoking onChunk (if non-nil) with the accumulated
// text after every delta, and returns the final text or the terminal error.
func Collect(ch <-chan StreamEvent, onChunk ChunkFunc) (string, error) {
	var last string
	for ev := range ch {
		switch ev.Type {
		case EventDelta:
			last = ev.Accumulated
			if onChunk != nil {
				onChunk(ev.Accumulated)
			}
		case EventDone:
			return ev.Result, nil
		case EventError, EventCancelled:
			if ev.Err != nil {
				return last, ev.Err
			}
			return last, NewError(KindStreaming, "", "stream terminated without a reason")
		}
	}
	// Channel closed without a terminal event.
	return last, NewError(KindStreaming, "", "stream closed unexpectedly")
}

// singleEventStream returns a pre-terminated stream carrying one event.
// Used when a streaming call fails before any chunk is produced.
func singleEventStream(ev StreamEvent) <-chan StreamEvent {
	ch := make(chan StreamEvent, 1)
	ch <- ev
	close(ch)
	return ch
}
