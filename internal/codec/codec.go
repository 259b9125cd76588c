// Package codec abstracts over the three transparent-compression
// algorithms macOS supports (LZFSE, LZVN, ZLIB). The algorithms themselves
// are external collaborators — LZFSE and LZVN are Apple's own, reached via
// libcompression, and ZLIB is klauspost/compress's implementation; this
// package only specifies and selects among their block-oriented APIs.
package codec

import "github.com/distr1/hfscompress/internal/decmpfs"

// Codec compresses and decompresses single fixed-size blocks. A Codec
// instance is not required to be safe for concurrent use; the compressor
// pool in internal/pipeline gives each worker its own instance so that any
// internal scratch state is reused across blocks without synchronization.
type Codec interface {
	// Name identifies the algorithm for CLI flags and info output.
	Name() string

	// CompressBlock compresses raw into a new buffer. Implementations may
	// reuse internal scratch space across calls but must not retain raw or
	// the returned slice beyond the call.
	CompressBlock(raw []byte) ([]byte, error)

	// DecompressBlock inverts CompressBlock. wantLen is the exact
	// uncompressed length the block table declares; implementations should
	// treat a mismatch as a codec error.
	DecompressBlock(encoded []byte, wantLen int) ([]byte, error)

	// VerbatimMarker is the single byte prepended to a block that is stored
	// uncompressed because compression did not shrink it, or failed, or
	// would itself begin with this marker.
	VerbatimMarker() byte

	// XattrType and ForkType are the decmpfs compression_type codes for
	// this algorithm's inline and resource-fork storage variants.
	XattrType() uint32
	ForkType() uint32
}

// New constructs a fresh Codec instance for the named algorithm. level only
// applies to "zlib"; it is ignored by the other algorithms.
func New(name string, level int) (Codec, error) {
	switch name {
	case "zlib":
		return newZlibCodec(level)
	case "lzfse":
		return newLZFSECodec()
	case "lzvn":
		return newLZVNCodec()
	default:
		return nil, &UnsupportedAlgorithmError{Name: name}
	}
}

// ForType returns a fresh Codec matching a decmpfs compression_type code,
// used when decompressing a file whose algorithm was chosen by whoever
// originally compressed it.
func ForType(t uint32) (Codec, error) {
	switch t {
	case decmpfs.TypeZlibXattr, decmpfs.TypeZlibFork:
		return newZlibCodec(defaultZlibLevel)
	case decmpfs.TypeLZVNXattr, decmpfs.TypeLZVNFork:
		return newLZVNCodec()
	case decmpfs.TypeLZFSEXattr, decmpfs.TypeLZFSEFork:
		return newLZFSECodec()
	default:
		return nil, &UnsupportedAlgorithmError{Name: "(unknown)"}
	}
}

// UnsupportedAlgorithmError is returned by New/ForType for an unrecognized
// algorithm name or decmpfs type code.
type UnsupportedAlgorithmError struct {
	Name string
}

func (e *UnsupportedAlgorithmError) Error() string {
	return "unsupported compression algorithm: " + e.Name
}

// EncodeBlock runs c over raw and applies the verbatim-storage fallback
// described in spec §4.3: if compression doesn't shrink the block, fails,
// or would produce output indistinguishable from a verbatim block, the raw
// bytes are stored instead with the marker byte prepended.
func EncodeBlock(c Codec, raw []byte) (payload []byte, verbatim bool) {
	encoded, err := c.CompressBlock(raw)
	if err != nil || len(encoded) >= len(raw) || (len(encoded) > 0 && encoded[0] == c.VerbatimMarker()) {
		out := make([]byte, 0, len(raw)+1)
		out = append(out, c.VerbatimMarker())
		out = append(out, raw...)
		return out, true
	}
	return encoded, false
}

// DecodeBlock inverts EncodeBlock given the exact uncompressed length the
// block table declares.
func DecodeBlock(c Codec, payload []byte, wantLen int) ([]byte, error) {
	if len(payload) > 0 && payload[0] == c.VerbatimMarker() {
		raw := payload[1:]
		if len(raw) != wantLen {
			return nil, &SizeMismatchError{Want: wantLen, Got: len(raw)}
		}
		return raw, nil
	}
	return c.DecompressBlock(payload, wantLen)
}

// SizeMismatchError is returned when a decoded block's length doesn't match
// the block table's declared length.
type SizeMismatchError struct {
	Want, Got int
}

func (e *SizeMismatchError) Error() string {
	return "decoded block size mismatch"
}
