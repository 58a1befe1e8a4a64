package orchestrator

// streamState tracks whether assistant text reached the client as
// incremental deltas. A response that already streamed must not be
// re-emitted in full when the turn finishes; a response produced
// without any deltas (confirmation prompts, local short-circuits,
// error text) still has to reach the client as token events.
type streamState int

const (
	stateNoContent streamState = iota
	stateStreaming
	stateFinalized
)

type textStream struct {
	state streamState
}

// delta reports whether an incremental chunk should be forwarded.
// The first chunk moves the stream into the streaming state; chunks
// arriving after finalization are dropped.
func (s *textStream) delta() bool {
	switch s.state {
	case stateNoContent:
		s.state = stateStreaming
		return true
	case stateStreaming:
		return true
	default:
		return false
	}
}

// finalize closes the stream and returns the text that still needs to
// be emitted: the full response when nothing streamed, nothing when
// deltas already carried it. Calling finalize twice returns nothing
// the second time.
func (s *textStream) finalize(full string) string {
	prev := s.state
	s.state = stateFinalized
	if prev == stateNoContent {
		return full
	}
	return ""
}
