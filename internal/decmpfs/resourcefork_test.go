package decmpfs

import (
	"bytes"
	"testing"
)

func TestLayoutRoundTrip(t *testing.T) {
	blocks := [][]byte{
		bytes.Repeat([]byte{0xAA}, BlockSize),
		bytes.Repeat([]byte{0xBB}, BlockSize),
		bytes.Repeat([]byte{0xCC}, 321),
	}
	uncompressedSize := uint64(2*BlockSize + 321)

	layout := BuildLayout(blocks)
	raw, err := layout.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := ParseLayout(raw, uncompressedSize)
	if err != nil {
		t.Fatalf("ParseLayout: %v", err)
	}
	if len(got.Blocks) != len(blocks) {
		t.Fatalf("got %d block table entries, want %d", len(got.Blocks), len(blocks))
	}
	for i, want := range blocks {
		if !bytes.Equal(got.Block(i), want) {
			t.Errorf("block %d mismatch", i)
		}
	}
}

func TestParseLayoutRejectsBadMagic(t *testing.T) {
	blocks := [][]byte{[]byte("x")}
	layout := BuildLayout(blocks)
	raw, err := layout.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	raw[0] ^= 0xFF
	if _, err := ParseLayout(raw, 1); err == nil {
		t.Fatal("expected error for corrupted magic, got nil")
	}
}

func TestParseLayoutRejectsBlockCountMismatch(t *testing.T) {
	blocks := [][]byte{[]byte("x"), []byte("y")}
	layout := BuildLayout(blocks)
	raw, err := layout.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// uncompressedSize implying a different block count than what's
	// actually in the table.
	if _, err := ParseLayout(raw, 2*BlockSize+1); err == nil {
		t.Fatal("expected error for block count mismatch, got nil")
	}
}

func TestParseLayoutRejectsOverlappingRanges(t *testing.T) {
	blocks := [][]byte{
		bytes.Repeat([]byte{1}, 10),
		bytes.Repeat([]byte{2}, 10),
	}
	layout := BuildLayout(blocks)
	// Corrupt the second block table entry's offset to overlap the first.
	layout.Blocks[1].Offset = layout.Blocks[0].Offset
	raw, err := layout.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// A size implying two blocks, so the block-count check passes and the
	// overlap check is what rejects the table.
	if _, err := ParseLayout(raw, BlockSize+10); err == nil {
		t.Fatal("expected error for overlapping block ranges, got nil")
	}
}

func TestParseLayoutRejectsShortInput(t *testing.T) {
	if _, err := ParseLayout([]byte{1, 2, 3}, 1); err == nil {
		t.Fatal("expected error for too-short input, got nil")
	}
}
