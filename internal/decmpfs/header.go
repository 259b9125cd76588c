// Package decmpfs implements the on-disk binary layout macOS expects for
// transparently compressed files: the 16-byte decmpfs header stored in the
// com.apple.decmpfs extended attribute, and (when the payload does not fit
// inline) the resource-fork block table in com.apple.ResourceFork.
//
// The package only serializes and parses bytes; it never touches the
// filesystem itself. See internal/fsmeta for the xattr/chflags plumbing and
// internal/pipeline for the producer/consumer pipeline that fills these
// structures in.
package decmpfs

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/xerrors"
)

// Magic is "fpmc" read as a little-endian uint32, the constant every
// decmpfs header begins with.
const Magic uint32 = 0x636d7066

// Compression type codes, as macOS's VFS compression layer defines them.
const (
	TypeZlibXattr  uint32 = 3
	TypeZlibFork   uint32 = 4
	TypeLZVNXattr  uint32 = 7
	TypeLZVNFork   uint32 = 8
	TypeLZFSEXattr uint32 = 11
	TypeLZFSEFork  uint32 = 12
)

// HeaderSize is the encoded length of Header, before any inline payload.
const HeaderSize = 16

// BlockSize is the fixed logical slice size every block table and the
// pipeline operate on.
const BlockSize = 65536

// InlineXattrLimit is the largest total xattr payload (header + encoded
// bytes) this implementation will store inline, chosen to stay comfortably
// under the xattr size macOS tends to tolerate well in practice.
const InlineXattrLimit = 3802

// Header is the fixed-size prefix of com.apple.decmpfs.
type Header struct {
	Magic            uint32
	CompressionType  uint32
	UncompressedSize uint64
}

// IsXattrType reports whether t stores its payload inline in the decmpfs
// xattr rather than in the resource fork.
func IsXattrType(t uint32) bool {
	switch t {
	case TypeZlibXattr, TypeLZVNXattr, TypeLZFSEXattr:
		return true
	default:
		return false
	}
}

// IsForkType reports whether t stores its payload in com.apple.ResourceFork.
func IsForkType(t uint32) bool {
	switch t {
	case TypeZlibFork, TypeLZVNFork, TypeLZFSEFork:
		return true
	default:
		return false
	}
}

// Marshal encodes h as the 16-byte little-endian decmpfs header.
func (h Header) Marshal() []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	// binary.Write never fails for a fixed-size struct of fixed-width
	// fields written to a bytes.Buffer.
	_ = binary.Write(&buf, binary.LittleEndian, h)
	return buf.Bytes()
}

// ParseHeader parses the leading HeaderSize bytes of a decmpfs xattr.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, xerrors.Errorf("decmpfs header: got %d bytes, want at least %d", len(data), HeaderSize)
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, xerrors.Errorf("decmpfs header: %w", err)
	}
	if h.Magic != Magic {
		return h, xerrors.Errorf("decmpfs header: invalid magic %#x, want %#x", h.Magic, Magic)
	}
	switch h.CompressionType {
	case TypeZlibXattr, TypeZlibFork, TypeLZVNXattr, TypeLZVNFork, TypeLZFSEXattr, TypeLZFSEFork:
	default:
		return h, xerrors.Errorf("decmpfs header: unknown compression type %d", h.CompressionType)
	}
	return h, nil
}

// NumBlocks is the number of BlockSize-sized logical blocks an
// uncompressedSize-byte file is divided into.
func NumBlocks(uncompressedSize uint64) int {
	if uncompressedSize == 0 {
		return 0
	}
	return int((uncompressedSize + BlockSize - 1) / BlockSize)
}

// LastBlockSize returns the length of the final block of a file of the
// given size; it is BlockSize unless the size doesn't divide evenly.
func LastBlockSize(uncompressedSize uint64) int {
	if uncompressedSize == 0 {
		return 0
	}
	if r := uncompressedSize % BlockSize; r != 0 {
		return int(r)
	}
	return BlockSize
}

// InlinePayload extracts the encoded payload that follows the header in an
// inline (xattr) decmpfs attribute value.
func InlinePayload(data []byte) ([]byte, error) {
	if len(data) < HeaderSize {
		return nil, xerrors.Errorf("decmpfs inline payload: attribute shorter than header (%d bytes)", len(data))
	}
	return data[HeaderSize:], nil
}

// WriteInline serializes h followed by payload, the full value to store in
// com.apple.decmpfs for xattr-resident compression types.
func WriteInline(h Header, payload []byte) []byte {
	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out, h.Marshal()...)
	out = append(out, payload...)
	return out
}
