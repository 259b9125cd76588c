package decmpfs

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/xerrors"
)

// Resource-fork layout constants. macOS's compression_io writes a fixed
// 256-byte header and a fixed 50-byte trailer around the block table and
// payloads; here the byte patterns are fixed compatibility constants
// synthesized in this file (only the offset/length fields are computed),
// not something derived from first principles (see spec Open Question (b)).
const (
	ForkHeaderSize  = 256
	ForkTrailerSize = 50

	// forkDataOffset is where the block table begins, matching the offset
	// macOS's own compressor uses (immediately after the fixed header).
	forkDataOffset uint32 = ForkHeaderSize
)

// resourceForkMagic is the classic resource-fork signature byte pattern
// macOS's compression helper stamps into the header's first four bytes.
var resourceForkMagic = [4]byte{0x00, 0x00, 0x01, 0x00}

// forkTrailerPattern is the fixed 50-byte trailer every macOS-written
// compressed resource fork ends with (a minimal resource map: zero
// resources, zero types).
var forkTrailerPattern = [ForkTrailerSize]byte{}

// forkHeader mirrors the subset of the classic resource-fork header that a
// decmpfs-compatible consumer inspects: offsets and lengths of the data and
// map sections. The remaining bytes of the 256-byte header are reserved and
// written as zero, matching what macOS itself emits for synthetic
// compressed-file resource forks.
type forkHeader struct {
	Magic      [4]byte
	DataOffset uint32
	MapOffset  uint32
	DataLength uint32
	MapLength  uint32
}

// BlockTableEntry describes one encoded block's placement within the
// resource fork's data section, measured from the start of the block table
// itself (not the start of the fork).
type BlockTableEntry struct {
	Offset uint32
	Length uint32
}

// Layout is the fully assembled resource-fork payload for a compressed
// file: header, block table, concatenated block payloads, and trailer.
type Layout struct {
	Blocks  []BlockTableEntry
	Payload []byte // concatenated block payloads, back-to-back
}

// blockTableSize is the encoded size of the block table: a u32 count
// followed by count (offset, length) pairs.
func blockTableSize(numBlocks int) int {
	return 4 + numBlocks*8
}

// BuildLayout lays out blocks (already encoded, in index order) into a
// resource-fork block table plus concatenated payload. Offsets in the
// returned table are measured from the start of the block table, as the
// format requires.
func BuildLayout(blocks [][]byte) Layout {
	table := make([]BlockTableEntry, len(blocks))
	tableSize := uint32(blockTableSize(len(blocks)))
	var payload bytes.Buffer
	offset := tableSize
	for i, b := range blocks {
		table[i] = BlockTableEntry{Offset: offset, Length: uint32(len(b))}
		payload.Write(b)
		offset += uint32(len(b))
	}
	return Layout{Blocks: table, Payload: payload.Bytes()}
}

// Marshal serializes the full resource-fork xattr value: 256-byte header,
// block table, block payloads, 50-byte trailer.
func (l Layout) Marshal() ([]byte, error) {
	var dataSection bytes.Buffer
	if err := binary.Write(&dataSection, binary.LittleEndian, uint32(len(l.Blocks))); err != nil {
		return nil, xerrors.Errorf("resource fork: writing block count: %w", err)
	}
	for _, e := range l.Blocks {
		if err := binary.Write(&dataSection, binary.LittleEndian, e); err != nil {
			return nil, xerrors.Errorf("resource fork: writing block table entry: %w", err)
		}
	}
	dataSection.Write(l.Payload)

	hdr := forkHeader{
		Magic:      resourceForkMagic,
		DataOffset: forkDataOffset,
		DataLength: uint32(dataSection.Len()),
		MapOffset:  forkDataOffset + uint32(dataSection.Len()),
		MapLength:  ForkTrailerSize,
	}

	var out bytes.Buffer
	out.Grow(ForkHeaderSize + dataSection.Len() + ForkTrailerSize)
	if err := binary.Write(&out, binary.LittleEndian, hdr); err != nil {
		return nil, xerrors.Errorf("resource fork: writing header: %w", err)
	}
	// Pad the fixed header out to ForkHeaderSize; the remaining bytes are
	// reserved and written as zero.
	if pad := ForkHeaderSize - out.Len(); pad > 0 {
		out.Write(make([]byte, pad))
	}
	out.Write(dataSection.Bytes())
	out.Write(forkTrailerPattern[:])
	return out.Bytes(), nil
}

// ParseLayout parses a raw com.apple.ResourceFork xattr value back into a
// block table and payload section. It rejects malformed tables per spec
// §4.5: wrong magic, ranges outside the payload, overlapping or
// non-monotonic ranges, or a block count inconsistent with uncompressedSize.
func ParseLayout(data []byte, uncompressedSize uint64) (Layout, error) {
	var l Layout
	if len(data) < ForkHeaderSize+ForkTrailerSize {
		return l, xerrors.Errorf("resource fork: %d bytes is too short for header+trailer", len(data))
	}
	var hdr forkHeader
	if err := binary.Read(bytes.NewReader(data[:ForkHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return l, xerrors.Errorf("resource fork: reading header: %w", err)
	}
	if hdr.Magic != resourceForkMagic {
		return l, xerrors.Errorf("resource fork: invalid magic %x", hdr.Magic)
	}

	dataSection := data[ForkHeaderSize : len(data)-ForkTrailerSize]
	if len(dataSection) < 4 {
		return l, xerrors.Errorf("resource fork: data section too short for block count")
	}
	count := binary.LittleEndian.Uint32(dataSection[:4])

	wantBlocks := NumBlocks(uncompressedSize)
	if int(count) != wantBlocks {
		return l, xerrors.Errorf("resource fork: block count %d inconsistent with uncompressed size %d (want %d)", count, uncompressedSize, wantBlocks)
	}

	tableSize := blockTableSize(int(count))
	if len(dataSection) < tableSize {
		return l, xerrors.Errorf("resource fork: data section too short for %d block table entries", count)
	}
	table := make([]BlockTableEntry, count)
	r := bytes.NewReader(dataSection[4:tableSize])
	for i := range table {
		if err := binary.Read(r, binary.LittleEndian, &table[i]); err != nil {
			return l, xerrors.Errorf("resource fork: reading block table entry %d: %w", i, err)
		}
	}

	payloadLen := uint32(len(dataSection))
	var prevEnd uint32
	for i, e := range table {
		if e.Offset < uint32(tableSize) {
			return l, xerrors.Errorf("resource fork: block %d offset %d precedes block table (size %d)", i, e.Offset, tableSize)
		}
		if i > 0 && e.Offset < prevEnd {
			return l, xerrors.Errorf("resource fork: block %d offset %d overlaps previous block ending at %d", i, e.Offset, prevEnd)
		}
		end := e.Offset + e.Length
		if end < e.Offset || end > payloadLen {
			return l, xerrors.Errorf("resource fork: block %d range [%d,%d) exceeds payload of %d bytes", i, e.Offset, end, payloadLen)
		}
		prevEnd = end
	}

	l.Blocks = table
	l.Payload = dataSection[tableSize:]
	return l, nil
}

// Block returns the payload bytes for table entry i, which are relative to
// the start of the block table (l.Payload already begins right after it).
func (l Layout) Block(i int) []byte {
	e := l.Blocks[i]
	tableSize := uint32(blockTableSize(len(l.Blocks)))
	start := e.Offset - tableSize
	return l.Payload[start : start+e.Length]
}
