package transcript

import (
	"time"

	"github.com/jjgarcianorway/anna/pkg/models"
)

// MaxEvents is the hard per-request transcript cap. Events past the cap
// are counted and dropped, and a TranscriptEvents diagnostic is recorded.
const MaxEvents = 100

// Stream is the per-request append-only event log.
//
// Single-writer: only the orchestrator goroutine appends. Readers
// (renderers, tests) run after the request completes, so no locking is
// needed; ordering is guaranteed by the single writer.
type Stream struct {
	start   time.Time
	events  []Event
	dropped int

	// now is swappable for tests.
	now func() time.Time
}

// NewStream creates an empty stream anchored at the request start time.
func NewStream(start time.Time) *Stream {
	return &Stream{start: start, now: time.Now}
}

// NewStreamWithClock creates a stream with an injected clock.
func NewStreamWithClock(start time.Time, now func() time.Time) *Stream {
	return &Stream{start: start, now: now}
}

// Append stamps the event with elapsed milliseconds and appends it.
// Past MaxEvents the event is dropped and counted. Elapsed timestamps
// are monotonic non-decreasing within one stream.
func (s *Stream) Append(ev Event) {
	if len(s.events) >= MaxEvents {
		s.dropped++
		return
	}
	ev.ElapsedMS = s.now().Sub(s.start).Milliseconds()
	if n := len(s.events); n > 0 && ev.ElapsedMS < s.events[n-1].ElapsedMS {
		ev.ElapsedMS = s.events[n-1].ElapsedMS
	}
	s.events = append(s.events, ev)
}

// Events returns the recorded events in order.
func (s *Stream) Events() []Event {
	return s.events
}

// Dropped returns how many events were discarded at the cap.
func (s *Stream) Dropped() int {
	return s.dropped
}

// CapDiagnostic returns the resource diagnostic for a capped stream, or
// nil when nothing was dropped.
func (s *Stream) CapDiagnostic() *models.ResourceDiagnostic {
	if s.dropped == 0 {
		return nil
	}
	return &models.ResourceDiagnostic{
		Kind:        models.ResourceTranscriptEvents,
		Limit:       MaxEvents,
		Dropped:     s.dropped,
		Consequence: "debug output incomplete, reliability penalty applies",
	}
}
