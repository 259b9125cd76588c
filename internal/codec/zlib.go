package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/xerrors"

	"github.com/distr1/hfscompress/internal/decmpfs"
)

const defaultZlibLevel = 5

// verbatimZlib is the single-byte sentinel ZLIB-backed blocks use; it must
// not collide with any valid zlib stream's first byte (0x78 is the usual
// CMF for zlib's default window, so 0xFF is free).
const verbatimZlib = 0xFF

// zlibCodec wraps klauspost/compress/zlib, reusing a single writer and its
// internal tables across blocks the way the pipeline's worker amortizes
// codec construction (spec §4.3: "each worker instantiates its algorithm
// state once").
type zlibCodec struct {
	level int
	buf   bytes.Buffer
	w     *zlib.Writer
}

func newZlibCodec(level int) (Codec, error) {
	if level < 1 || level > 12 {
		return nil, xerrors.Errorf("zlib level %d out of range [1,12]", level)
	}
	// klauspost/compress/zlib only implements the standard 1-9 levels
	// beyond BestSpeed/BestCompression; the tool-level 1-12 range maps
	// linearly onto it, clamped at 9.
	flateLevel := level
	if flateLevel > 9 {
		flateLevel = 9
	}
	w, err := zlib.NewWriterLevel(io.Discard, flateLevel)
	if err != nil {
		return nil, xerrors.Errorf("zlib: %w", err)
	}
	return &zlibCodec{level: level, w: w}, nil
}

func (c *zlibCodec) Name() string { return "zlib" }

func (c *zlibCodec) CompressBlock(raw []byte) ([]byte, error) {
	c.buf.Reset()
	c.w.Reset(&c.buf)
	if _, err := c.w.Write(raw); err != nil {
		return nil, xerrors.Errorf("zlib compress: %w", err)
	}
	if err := c.w.Close(); err != nil {
		return nil, xerrors.Errorf("zlib compress: %w", err)
	}
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out, nil
}

func (c *zlibCodec) DecompressBlock(encoded []byte, wantLen int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(encoded))
	if err != nil {
		return nil, xerrors.Errorf("zlib decompress: %w", err)
	}
	defer zr.Close()
	out := make([]byte, wantLen)
	n, err := io.ReadFull(zr, out)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, xerrors.Errorf("zlib decompress: %w", err)
	}
	if n != wantLen {
		return nil, &SizeMismatchError{Want: wantLen, Got: n}
	}
	return out, nil
}

func (c *zlibCodec) VerbatimMarker() byte { return verbatimZlib }
func (c *zlibCodec) XattrType() uint32    { return decmpfs.TypeZlibXattr }
func (c *zlibCodec) ForkType() uint32     { return decmpfs.TypeZlibFork }
