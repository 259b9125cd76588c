package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReassemblerInOrder(t *testing.T) {
	r := newReassembler()
	r.Offer(EncodedBlock{Index: 0, Payload: []byte("a")})
	got := r.Drain()
	if len(got) != 1 || string(got[0].Payload) != "a" {
		t.Fatalf("Drain = %+v, want one block 'a'", got)
	}
	if r.Done(1) != true {
		t.Fatal("expected Done(1) true after draining the only block")
	}
}

func TestReassemblerOutOfOrder(t *testing.T) {
	r := newReassembler()
	r.Offer(EncodedBlock{Index: 2, Payload: []byte("c")})
	if got := r.Drain(); len(got) != 0 {
		t.Fatalf("Drain with a gap at 0 should yield nothing, got %+v", got)
	}
	r.Offer(EncodedBlock{Index: 1, Payload: []byte("b")})
	if got := r.Drain(); len(got) != 0 {
		t.Fatalf("Drain with a gap at 0 should still yield nothing, got %+v", got)
	}
	r.Offer(EncodedBlock{Index: 0, Payload: []byte("a")})
	got := r.Drain()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Drain = %+v, want %d blocks", got, len(want))
	}
	for i, b := range got {
		if string(b.Payload) != want[i] {
			t.Errorf("block %d = %q, want %q", i, b.Payload, want[i])
		}
	}
	if !r.Done(3) {
		t.Fatal("expected Done(3) true")
	}
}

func TestReassemblerDoneFalseUntilAllDrained(t *testing.T) {
	r := newReassembler()
	r.Offer(EncodedBlock{Index: 0})
	r.Drain()
	if r.Done(2) {
		t.Fatal("expected Done(2) false with only one of two blocks drained")
	}
}

func TestReassemblerPreservesFieldsThroughDrain(t *testing.T) {
	r := newReassembler()
	b := EncodedBlock{Index: 0, Payload: []byte{1, 2, 3}, StoredVerbatim: true}
	r.Offer(b)
	got := r.Drain()
	if diff := cmp.Diff(b, got[0]); diff != "" {
		t.Fatalf("Drain mismatch (-want +got):\n%s", diff)
	}
}
