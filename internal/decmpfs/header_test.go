package decmpfs

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Magic: Magic, CompressionType: TypeZlibXattr, UncompressedSize: 123456}
	got, err := ParseHeader(h.Marshal())
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	h := Header{Magic: 0xdeadbeef, CompressionType: TypeZlibXattr, UncompressedSize: 1}
	if _, err := ParseHeader(h.Marshal()); err == nil {
		t.Fatal("expected error for bad magic, got nil")
	}
}

func TestParseHeaderRejectsUnknownType(t *testing.T) {
	h := Header{Magic: Magic, CompressionType: 99, UncompressedSize: 1}
	if _, err := ParseHeader(h.Marshal()); err == nil {
		t.Fatal("expected error for unknown compression type, got nil")
	}
}

func TestParseHeaderRejectsShort(t *testing.T) {
	if _, err := ParseHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short header, got nil")
	}
}

func TestNumBlocks(t *testing.T) {
	cases := []struct {
		size uint64
		want int
	}{
		{0, 0},
		{1, 1},
		{BlockSize, 1},
		{BlockSize + 1, 2},
		{2 * BlockSize, 2},
	}
	for _, c := range cases {
		if got := NumBlocks(c.size); got != c.want {
			t.Errorf("NumBlocks(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestLastBlockSize(t *testing.T) {
	cases := []struct {
		size uint64
		want int
	}{
		{0, 0},
		{1, 1},
		{BlockSize, BlockSize},
		{BlockSize + 100, 100},
	}
	for _, c := range cases {
		if got := LastBlockSize(c.size); got != c.want {
			t.Errorf("LastBlockSize(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestWriteInlineAndInlinePayload(t *testing.T) {
	h := Header{Magic: Magic, CompressionType: TypeLZFSEXattr, UncompressedSize: 7}
	payload := []byte("payload")
	full := WriteInline(h, payload)

	gotHdr, err := ParseHeader(full)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if gotHdr != h {
		t.Fatalf("header mismatch: got %+v, want %+v", gotHdr, h)
	}

	gotPayload, err := InlinePayload(full)
	if err != nil {
		t.Fatalf("InlinePayload: %v", err)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Fatalf("payload mismatch: got %q, want %q", gotPayload, payload)
	}
}

func TestIsXattrTypeIsForkType(t *testing.T) {
	xattrTypes := []uint32{TypeZlibXattr, TypeLZVNXattr, TypeLZFSEXattr}
	forkTypes := []uint32{TypeZlibFork, TypeLZVNFork, TypeLZFSEFork}
	for _, t1 := range xattrTypes {
		if !IsXattrType(t1) || IsForkType(t1) {
			t.Errorf("type %d: want xattr type, got IsXattrType=%v IsForkType=%v", t1, IsXattrType(t1), IsForkType(t1))
		}
	}
	for _, t1 := range forkTypes {
		if !IsForkType(t1) || IsXattrType(t1) {
			t.Errorf("type %d: want fork type, got IsXattrType=%v IsForkType=%v", t1, IsXattrType(t1), IsForkType(t1))
		}
	}
}
