package pipeline

import "github.com/kitchen-mate/clipper/internal/model"

// Stage names a pipeline phase for progress reporting.
type Stage string

const (
	StageFetching      Stage = "fetching"
	StageDeterministic Stage = "deterministic"
	StageAI            Stage = "ai"
	StageComplete      Stage = "complete"
	StageError         Stage = "error"
)

// Event is one progress notification. Exactly one terminal event (complete
// or error) ends every stream; intermediate events are best-effort.
type Event struct {
	Stage   Stage                 `json:"stage"`
	Message string                `json:"message,omitempty"`
	Outcome *model.ExtractOutcome `json:"outcome,omitempty"`
	Detail  string                `json:"detail,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Stage == StageComplete || e.Stage == StageError
}

const eventBuffer = 8

// emitter delivers events to a bounded channel. A slow or absent consumer
// loses intermediate events, never the terminal one: when the buffer is
// full the oldest queued event is dropped to make room. Only the pipeline
// goroutine sends, so the drop-then-send pair cannot race another producer.
type emitter struct {
	ch chan Event
}

func newEmitter() *emitter {
	return &emitter{ch: make(chan Event, eventBuffer)}
}

func (e *emitter) emit(stage Stage, message string) {
	if e == nil {
		return
	}
	e.send(Event{Stage: stage, Message: message})
}

func (e *emitter) send(ev Event) {
	for {
		select {
		case e.ch <- ev:
			return
		default:
			// Buffer full; drop the oldest intermediate event.
			select {
			case <-e.ch:
			default:
			}
		}
	}
}

// finish queues the terminal event and closes the stream.
func (e *emitter) finish(outcome *model.ExtractOutcome, err error) {
	if e == nil {
		return
	}
	if err != nil {
		e.send(Event{Stage: StageError, Detail: err.Error()})
	} else {
		e.send(Event{Stage: StageComplete, Outcome: outcome})
	}
	close(e.ch)
}
