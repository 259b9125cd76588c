package pipeline

import "testing"

func TestStatsEmitCountsOutcomes(t *testing.T) {
	var s Stats
	s.Emit(Event{Kind: EventBytesRead, Bytes: 100})
	s.Emit(Event{Kind: EventBytesWritten, Bytes: 40})
	s.Emit(Event{Kind: EventFileDone, Outcome: &FileOutcome{Kind: OutcomeCompressed}})
	s.Emit(Event{Kind: EventFileDone, Outcome: &FileOutcome{Kind: OutcomeFailed}})
	s.Emit(Event{Kind: EventFileDone, Outcome: &FileOutcome{Kind: OutcomeSkipped, Reason: ReasonWouldGrow}})
	s.Emit(Event{Kind: EventFileDone, Outcome: &FileOutcome{Kind: OutcomeSkipped, Reason: ReasonHardlinkUnsafe}})

	if s.BytesRead != 100 {
		t.Errorf("BytesRead = %d, want 100", s.BytesRead)
	}
	if s.BytesWritten != 40 {
		t.Errorf("BytesWritten = %d, want 40", s.BytesWritten)
	}
	if s.Compressed != 1 {
		t.Errorf("Compressed = %d, want 1", s.Compressed)
	}
	if s.Failed != 1 {
		t.Errorf("Failed = %d, want 1", s.Failed)
	}
	if s.SkippedWouldGrow != 1 {
		t.Errorf("SkippedWouldGrow = %d, want 1", s.SkippedWouldGrow)
	}
	if s.SkippedHardlinkUnsafe != 1 {
		t.Errorf("SkippedHardlinkUnsafe = %d, want 1", s.SkippedHardlinkUnsafe)
	}
}

func TestChanSinkDeliversWithoutBlockingCaller(t *testing.T) {
	sink, events := NewChanSink(2)
	// Emit more events than the buffer holds; Emit must never block the
	// caller (spec §5 "non-blocking, lossless channel").
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			sink.Emit(Event{Kind: EventBytesRead, Bytes: int64(i)})
		}
		close(done)
	}()
	<-done

	var total int64
	for i := 0; i < 10; i++ {
		e := <-events
		total += e.Bytes
	}
	if want := int64(0 + 1 + 2 + 3 + 4 + 5 + 6 + 7 + 8 + 9); total != want {
		t.Errorf("total delivered bytes = %d, want %d", total, want)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	var a, b Stats
	m := MultiSink{&a, &b}
	m.Emit(Event{Kind: EventBytesRead, Bytes: 5})
	if a.BytesRead != 5 || b.BytesRead != 5 {
		t.Fatalf("a.BytesRead=%d b.BytesRead=%d, want both 5", a.BytesRead, b.BytesRead)
	}
}
