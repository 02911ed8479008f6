package query

import (
	"context"

	"github.com/threadscope/pkg/models"
)

// EventType is the discriminator on every streamed event object.
type EventType string

const (
	EventPhaseStart    EventType = "phase_start"
	EventMapProgress   EventType = "map_progress"
	EventPhaseComplete EventType = "phase_complete"
	EventResult        EventType = "result"
	EventError         EventType = "error"
)

// Phase names the pipeline stage an event belongs to.
type Phase string

const (
	PhaseMap     Phase = "map"
	PhaseResolve Phase = "resolve"
	PhaseReduce  Phase = "reduce"
)

// Event is one NDJSON object on the query stream.
type Event struct {
	Type         EventType      `json:"type"`
	Phase        Phase          `json:"phase,omitempty"`
	Chunk        int            `json:"chunk,omitempty"`
	Total        int            `json:"total,omitempty"`
	PostsInChunk int            `json:"posts_in_chunk,omitempty"`
	Result       *models.Answer `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// stream wraps the event channel with cancellation-aware emission. Once the
// consumer's context is gone, emits become no-ops: in-flight work may finish
// but nothing more reaches the wire.
type stream struct {
	ch     chan Event
	ctx    context.Context
	closed bool
}

func newStream(ctx context.Context, buffer int) *stream {
	return &stream{ch: make(chan Event, buffer), ctx: ctx}
}

// emit delivers one event in order. Returns false when the consumer is gone.
func (s *stream) emit(e Event) bool {
	if s.closed {
		return false
	}
	select {
	case <-s.ctx.Done():
		return false
	case s.ch <- e:
		return true
	}
}

// fail emits the single terminal error event and closes the stream. No phase
// events may follow.
func (s *stream) fail(msg string) {
	s.emit(Event{Type: EventError, Error: msg})
	s.close()
}

func (s *stream) close() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
