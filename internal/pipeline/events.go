package pipeline

import "sync/atomic"

// Event is emitted by every stage for consumption by a Sink. The core only
// produces events; rendering them is an external collaborator's concern
// (spec §1), so Event is a plain value type with no behavior attached.
type Event struct {
	Kind    EventKind
	Path    string
	Bytes   int64
	Outcome *FileOutcome // set only for EventFileDone
}

type EventKind int

const (
	EventBytesRead EventKind = iota
	EventBytesWritten
	EventFileDone
)

// Sink receives a non-blocking, lossless stream of Events (spec §5: "All
// stages -> progress sink: non-blocking, lossless channel"). Implementations
// must not block the caller; NewChanSink's channel below is buffered generously and
// a slow consumer simply falls behind, never stalling the pipeline.
type Sink interface {
	Emit(Event)
}

// Stats accumulates the cumulative counters spec §7 requires the CLI to
// report in its end-of-run summary. All fields are updated with atomic
// fetch-add, since many coordinator goroutines emit concurrently (spec §5
// "Progress counters use atomic fetch-add").
type Stats struct {
	BytesRead    int64
	BytesWritten int64

	Compressed   int64
	Decompressed int64
	Failed       int64

	SkippedWouldGrow         int64
	SkippedHardlink          int64
	SkippedHardlinkUnsafe    int64
	SkippedNonRegular        int64
	SkippedAlreadyCompressed int64
	SkippedNotCompressed     int64
}

// Emit implements Sink by folding the event into the running counters.
func (s *Stats) Emit(e Event) {
	switch e.Kind {
	case EventBytesRead:
		atomic.AddInt64(&s.BytesRead, e.Bytes)
	case EventBytesWritten:
		atomic.AddInt64(&s.BytesWritten, e.Bytes)
	case EventFileDone:
		s.recordOutcome(e.Outcome)
	}
}

func (s *Stats) recordOutcome(o *FileOutcome) {
	if o == nil {
		return
	}
	switch o.Kind {
	case OutcomeCompressed:
		atomic.AddInt64(&s.Compressed, 1)
	case OutcomeDecompressed:
		atomic.AddInt64(&s.Decompressed, 1)
	case OutcomeFailed:
		atomic.AddInt64(&s.Failed, 1)
	case OutcomeSkipped:
		switch o.Reason {
		case ReasonWouldGrow:
			atomic.AddInt64(&s.SkippedWouldGrow, 1)
		case ReasonHardlink:
			atomic.AddInt64(&s.SkippedHardlink, 1)
		case ReasonHardlinkUnsafe:
			atomic.AddInt64(&s.SkippedHardlinkUnsafe, 1)
		case ReasonNonRegular:
			atomic.AddInt64(&s.SkippedNonRegular, 1)
		case ReasonAlreadyCompressed:
			atomic.AddInt64(&s.SkippedAlreadyCompressed, 1)
		case ReasonNotCompressed:
			atomic.AddInt64(&s.SkippedNotCompressed, 1)
		}
	}
}

// chanSink fans Emit calls into a buffered channel so no stage ever blocks
// on a slow consumer; NewChanSink's buffer size is generous (spec §5).
type chanSink struct {
	events chan Event
}

// NewChanSink returns a Sink backed by a buffered channel, and the channel
// itself for a consumer (typically the CLI's progress renderer) to drain.
func NewChanSink(buffer int) (Sink, <-chan Event) {
	cs := &chanSink{events: make(chan Event, buffer)}
	return cs, cs.events
}

func (cs *chanSink) Emit(e Event) {
	select {
	case cs.events <- e:
	default:
		// The buffer is sized generously for steady-state load; if it's
		// momentarily full, deliver from a throwaway goroutine instead of
		// dropping the event or blocking the calling stage.
		go func() { cs.events <- e }()
	}
}

// MultiSink fans every Emit out to several sinks, e.g. Stats plus a
// channel-backed progress renderer.
type MultiSink []Sink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}
