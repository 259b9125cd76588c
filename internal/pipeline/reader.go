package pipeline

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/distr1/hfscompress/internal/decmpfs"
	"github.com/distr1/hfscompress/internal/fsmeta"
)

// ReadRawBlocks opens path for reading only and emits (index, bytes) pairs
// in BlockSize chunks, monotonically, until EOF. declaredSize is the size
// captured in the FileTask's metadata snapshot; a short read before the
// expected EOF, or more bytes than declared, means the source changed size
// mid-read and is reported as ErrSourceMutated (spec §4.2). Every block
// successfully read from disk is reported to sink as an EventBytesRead
// before emit is called (spec §5: "All stages -> progress sink ... bytes
// read, bytes written").
func ReadRawBlocks(path string, declaredSize int64, sink Sink, emit func(RawBlock) error) error {
	f, err := os.Open(path)
	if err != nil {
		return &IOError{Op: OpOpen, Err: err}
	}
	defer f.Close()

	buf := make([]byte, decmpfs.BlockSize)
	var readSoFar int64
	for index := 0; ; index++ {
		n, err := io.ReadFull(f, buf)
		readSoFar += int64(n)
		switch {
		case err == io.EOF:
			// Clean end exactly on a block boundary.
			if readSoFar != declaredSize {
				return &ErrSourceMutated{Path: path}
			}
			return nil
		case err == io.ErrUnexpectedEOF:
			// Final, short block. Only valid if it lines up with the
			// declared size; otherwise the file shrank mid-read.
			if readSoFar != declaredSize {
				return &ErrSourceMutated{Path: path}
			}
			out := make([]byte, n)
			copy(out, buf[:n])
			sink.Emit(Event{Kind: EventBytesRead, Path: path, Bytes: int64(n)})
			return emit(RawBlock{Index: index, Bytes: out})
		case err != nil:
			return &IOError{Op: OpRead, Err: err}
		}

		if readSoFar > declaredSize {
			return &ErrSourceMutated{Path: path}
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		sink.Emit(Event{Kind: EventBytesRead, Path: path, Bytes: int64(n)})
		if err := emit(RawBlock{Index: index, Bytes: out}); err != nil {
			return err
		}
	}
}

// DecmpfsState is what the Reader extracts from an already-compressed
// file before it can emit EncodedBlocks: the parsed header plus, for
// xattr-resident payloads, the inline bytes, or for fork-resident
// payloads, the parsed resource-fork layout.
type DecmpfsState struct {
	Header decmpfs.Header
	Fork   *decmpfs.Layout // nil for xattr-resident storage
	Inline []byte          // nil for fork-resident storage
}

// ReadDecmpfsState reads and validates the com.apple.decmpfs (and, if
// needed, com.apple.ResourceFork) extended attributes of path. When no
// decmpfs attribute is present at all it returns present=false and a nil
// error.
func ReadDecmpfsState(path string) (DecmpfsState, bool, error) {
	raw, err := fsmeta.GetXattr(path, fsmeta.DecmpfsAttr)
	if err != nil {
		if errors.Is(err, unix.ENOATTR) {
			return DecmpfsState{}, false, nil
		}
		return DecmpfsState{}, false, &IOError{Op: OpXattrGet, Err: err}
	}
	if raw == nil {
		return DecmpfsState{}, false, nil
	}

	hdr, err := decmpfs.ParseHeader(raw)
	if err != nil {
		return DecmpfsState{}, true, &FormatError{Detail: err.Error()}
	}

	if decmpfs.IsXattrType(hdr.CompressionType) {
		payload, err := decmpfs.InlinePayload(raw)
		if err != nil {
			return DecmpfsState{}, true, &FormatError{Detail: err.Error()}
		}
		return DecmpfsState{Header: hdr, Inline: payload}, true, nil
	}

	forkRaw, err := fsmeta.GetXattr(path, fsmeta.ResourceForkAttr)
	if err != nil {
		return DecmpfsState{}, true, &IOError{Op: OpXattrGet, Err: err}
	}
	layout, err := decmpfs.ParseLayout(forkRaw, hdr.UncompressedSize)
	if err != nil {
		return DecmpfsState{}, true, &FormatError{Detail: err.Error()}
	}
	return DecmpfsState{Header: hdr, Fork: &layout}, true, nil
}

// ReadEncodedBlocks emits one EncodedBlock per block described by state,
// in index order (the xattr/fork layout is already fully buffered in
// memory by ReadDecmpfsState, so there is no further I/O to interleave).
// Each block's on-disk (encoded) size is reported to sink as an
// EventBytesRead before emit is called, mirroring ReadRawBlocks' reporting
// on the compress path.
func ReadEncodedBlocks(state DecmpfsState, sink Sink, emit func(EncodedBlock) error) error {
	n := decmpfs.NumBlocks(state.Header.UncompressedSize)
	for i := 0; i < n; i++ {
		var payload []byte
		switch {
		case state.Inline != nil:
			payload = state.Inline
			if n != 1 {
				return &FormatError{Detail: "inline decmpfs payload declares more than one block"}
			}
		case state.Fork != nil:
			if i >= len(state.Fork.Blocks) {
				return &FormatError{Detail: "block table shorter than declared block count"}
			}
			payload = state.Fork.Block(i)
		default:
			return xerrors.Errorf("decmpfs state has neither inline payload nor resource fork")
		}
		sink.Emit(Event{Kind: EventBytesRead, Bytes: int64(len(payload))})
		if err := emit(EncodedBlock{Index: i, Payload: payload}); err != nil {
			return err
		}
	}
	return nil
}
