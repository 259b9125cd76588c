//go:build darwin

package codec

/*
#cgo LDFLAGS: -lcompression
#include <compression.h>
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"golang.org/x/xerrors"

	"github.com/distr1/hfscompress/internal/decmpfs"
)

const verbatimLZ = 0x06

// libcompressionCodec wraps Apple's libcompression buffer API
// (compression_encode_buffer/compression_decode_buffer), shared by the
// LZFSE and LZVN codecs which differ only in the algorithm constant passed
// to libcompression. A scratch buffer large enough for one block is reused
// across calls, amortizing allocation the way the pool's per-worker codec
// instance is meant to (spec §4.3).
type libcompressionCodec struct {
	algo  C.compression_algorithm
	name  string
	xattr uint32
	fork  uint32
	dst   []byte
}

func newLZFSECodec() (Codec, error) {
	return &libcompressionCodec{
		algo:  C.COMPRESSION_LZFSE,
		name:  "lzfse",
		xattr: decmpfs.TypeLZFSEXattr,
		fork:  decmpfs.TypeLZFSEFork,
	}, nil
}

func newLZVNCodec() (Codec, error) {
	return &libcompressionCodec{
		algo:  C.COMPRESSION_LZVN,
		name:  "lzvn",
		xattr: decmpfs.TypeLZVNXattr,
		fork:  decmpfs.TypeLZVNFork,
	}, nil
}

func (c *libcompressionCodec) Name() string { return c.name }

func (c *libcompressionCodec) ensureDst(n int) {
	if cap(c.dst) < n {
		c.dst = make([]byte, n)
	}
	c.dst = c.dst[:n]
}

func (c *libcompressionCodec) CompressBlock(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	// libcompression can, in the worst case, expand data slightly; size the
	// scratch buffer generously and let the syscall tell us the real size.
	c.ensureDst(len(raw) + len(raw)/8 + 64)
	n := C.compression_encode_buffer(
		(*C.uint8_t)(unsafe.Pointer(&c.dst[0])), C.size_t(len(c.dst)),
		(*C.uint8_t)(unsafe.Pointer(&raw[0])), C.size_t(len(raw)),
		nil, c.algo)
	if n == 0 {
		return nil, xerrors.Errorf("%s: compression_encode_buffer failed", c.name)
	}
	out := make([]byte, int(n))
	copy(out, c.dst[:n])
	return out, nil
}

func (c *libcompressionCodec) DecompressBlock(encoded []byte, wantLen int) ([]byte, error) {
	if wantLen == 0 {
		return nil, nil
	}
	if len(encoded) == 0 {
		return nil, xerrors.Errorf("%s: empty encoded block for %d-byte output", c.name, wantLen)
	}
	out := make([]byte, wantLen)
	n := C.compression_decode_buffer(
		(*C.uint8_t)(unsafe.Pointer(&out[0])), C.size_t(wantLen),
		(*C.uint8_t)(unsafe.Pointer(&encoded[0])), C.size_t(len(encoded)),
		nil, c.algo)
	if int(n) != wantLen {
		return nil, &SizeMismatchError{Want: wantLen, Got: int(n)}
	}
	return out, nil
}

func (c *libcompressionCodec) VerbatimMarker() byte { return verbatimLZ }
func (c *libcompressionCodec) XattrType() uint32    { return c.xattr }
func (c *libcompressionCodec) ForkType() uint32     { return c.fork }
