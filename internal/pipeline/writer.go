package pipeline

import (
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	hfscompress "github.com/distr1/hfscompress"
	"github.com/distr1/hfscompress/internal/codec"
	"github.com/distr1/hfscompress/internal/decmpfs"
	"github.com/distr1/hfscompress/internal/fsmeta"
)

// cloneEligibleSize bounds the "source is small" clause of spec §4.4 step
// 2: below this, the Writer seeds the temp file via clonefile (inheriting
// non-decmpfs xattrs and ACLs in one syscall) rather than an empty file
// plus a manual xattr-by-xattr copy.
const cloneEligibleSize = 8 << 20

// pendingFile unifies the two ways the Writer can seed a temp file: via
// renameio.TempFile (the common, portable path) or, when eligible, via
// clonefile directly onto a uuid-named sibling of the target (spec §6:
// "clonefile for same-volume atomic cloning (preferred when available)").
// Either way it is registered with a cleanup hook (spec §9 "every temp
// file is registered with a deletion hook") until CloseAtomicallyReplace
// succeeds.
type pendingFile struct {
	f         *os.File
	tempPath  string
	target    string
	viaClone  bool
	rio       *renameio.PendingFile
	cleanupID int
}

func newPendingFile(target string, cloneFrom string, cloneEligible bool) (*pendingFile, error) {
	dir := filepath.Dir(target)

	if cloneEligible {
		tempPath := filepath.Join(dir, "."+filepath.Base(target)+"."+uuid.NewString()+".tmp")
		if err := fsmeta.CloneFile(cloneFrom, tempPath); err == nil {
			f, err := os.OpenFile(tempPath, os.O_RDWR, 0)
			if err == nil {
				pf := &pendingFile{f: f, tempPath: tempPath, target: target, viaClone: true}
				pf.cleanupID = hfscompress.RegisterCleanup(func() error { return os.Remove(tempPath) })
				return pf, nil
			}
			os.Remove(tempPath)
		}
		// clonefile unavailable or failed (e.g. cross-device, or the
		// source vanished): fall through to the portable path.
	}

	rio, err := renameio.TempFile(dir, target)
	if err != nil {
		return nil, &IOError{Op: OpOpen, Err: err}
	}
	pf := &pendingFile{rio: rio, target: target, tempPath: rio.Name()}
	pf.cleanupID = hfscompress.RegisterCleanup(func() error { return rio.Cleanup() })
	return pf, nil
}

func (pf *pendingFile) File() *os.File {
	if pf.viaClone {
		return pf.f
	}
	return pf.rio.File
}

func (pf *pendingFile) CloseAtomicallyReplace() error {
	defer hfscompress.UnregisterCleanup(pf.cleanupID)
	if pf.viaClone {
		if err := pf.f.Close(); err != nil {
			return &IOError{Op: OpWrite, Err: err}
		}
		if err := os.Rename(pf.tempPath, pf.target); err != nil {
			return &IOError{Op: OpRename, Err: err}
		}
		return nil
	}
	if err := pf.rio.CloseAtomicallyReplace(); err != nil {
		return &IOError{Op: OpRename, Err: err}
	}
	return nil
}

func (pf *pendingFile) Cleanup() error {
	defer hfscompress.UnregisterCleanup(pf.cleanupID)
	if pf.viaClone {
		pf.f.Close()
		return os.Remove(pf.tempPath)
	}
	return pf.rio.Cleanup()
}

// CompressedBlocks accumulates a file's encoded blocks in index order as
// they drain from the reassembler, tracking the running total so the
// storage-location decision (spec §4.4 step 4) can be made the instant the
// last block arrives, with no second pass over the data.
type CompressedBlocks struct {
	reasm      *reassembler
	ordered    [][]byte
	totalBytes int64
}

func NewCompressedBlocks() *CompressedBlocks {
	return &CompressedBlocks{reasm: newReassembler()}
}

// Offer feeds one EncodedBlock into the reassembler and appends whatever
// contiguous prefix is now available.
func (c *CompressedBlocks) Offer(b EncodedBlock) {
	c.reasm.Offer(b)
	for _, ready := range c.reasm.Drain() {
		c.ordered = append(c.ordered, ready.Payload)
		c.totalBytes += int64(len(ready.Payload))
	}
}

// WriteCompressed finalizes a compress operation: decides xattr vs
// resource-fork storage, writes the temp file's attributes, truncates its
// data fork, sets UF_COMPRESSED, restores ownership/mode/timestamps and
// non-decmpfs xattrs, and atomically renames over the source (spec §4.4).
func WriteCompressed(task FileTask, c codec.Codec, blocks *CompressedBlocks, dryRun bool, sink Sink) (FileOutcome, error) {
	headerOverhead := int64(decmpfs.HeaderSize)

	// Conservative overhead estimate for the size-monotone check: the
	// 16-byte header either way, plus the resource-fork wrapper if that's
	// where the payload ends up.
	// Inline storage has no block table, so only a single-block file can be
	// stored there.
	inline := len(blocks.ordered) <= 1 && blocks.totalBytes+headerOverhead <= decmpfs.InlineXattrLimit
	overhead := headerOverhead
	if !inline {
		overhead += decmpfs.ForkHeaderSize + decmpfs.ForkTrailerSize + int64(4+8*len(blocks.ordered))
	}

	if blocks.totalBytes+overhead >= task.Meta.Size {
		return FileOutcome{Path: task.Path, Kind: OutcomeSkipped, Reason: ReasonWouldGrow}, nil
	}

	if dryRun {
		return FileOutcome{Path: task.Path, Kind: OutcomeCompressed, NewSize: blocks.totalBytes + overhead}, nil
	}

	dir := filepath.Dir(task.Path)
	dirTimes, err := fsmeta.CaptureDirTimes(dir)
	if err != nil {
		return FileOutcome{}, err
	}
	defer fsmeta.RestoreDirTimes(dir, dirTimes)

	restoreImmutable, err := fsmeta.WithoutImmutable(task.Path)
	if err != nil {
		return FileOutcome{}, err
	}

	pf, err := newPendingFile(task.Path, task.Path, task.Meta.Size <= cloneEligibleSize)
	if err != nil {
		restoreImmutable()
		return FileOutcome{}, err
	}
	ok := false
	defer func() {
		if !ok {
			pf.Cleanup()
			restoreImmutable()
		}
	}()

	if !pf.viaClone {
		if err := fsmeta.CopyOtherXattrs(task.Path, pf.tempPath); err != nil {
			return FileOutcome{}, err
		}
	}

	hdr := decmpfs.Header{Magic: decmpfs.Magic, UncompressedSize: uint64(task.Meta.Size)}
	if inline {
		hdr.CompressionType = c.XattrType()
		payload := decmpfs.WriteInline(hdr, concatBlocks(blocks.ordered))
		if err := fsmeta.SetXattr(pf.tempPath, fsmeta.DecmpfsAttr, payload); err != nil {
			return FileOutcome{}, &IOError{Op: OpXattrSet, Err: err}
		}
	} else {
		hdr.CompressionType = c.ForkType()
		if err := fsmeta.SetXattr(pf.tempPath, fsmeta.DecmpfsAttr, hdr.Marshal()); err != nil {
			return FileOutcome{}, &IOError{Op: OpXattrSet, Err: err}
		}
		layout := decmpfs.BuildLayout(blocks.ordered)
		forkData, err := layout.Marshal()
		if err != nil {
			return FileOutcome{}, &FormatError{Detail: err.Error()}
		}
		if err := fsmeta.SetXattr(pf.tempPath, fsmeta.ResourceForkAttr, forkData); err != nil {
			return FileOutcome{}, &IOError{Op: OpXattrSet, Err: err}
		}
	}

	if err := pf.File().Truncate(0); err != nil {
		return FileOutcome{}, &IOError{Op: OpWrite, Err: err}
	}

	if err := fsmeta.SetFlags(pf.tempPath, task.Meta.Flags|unix.UF_COMPRESSED); err != nil {
		return FileOutcome{}, &IOError{Op: OpChflags, Err: err}
	}

	if err := fsmeta.Restore(pf.tempPath, task.Meta); err != nil {
		return FileOutcome{}, err
	}

	// restoreImmutable is a no-op past this point on success: the rename
	// below replaces task.Path's inode outright, and the new inode's flags
	// (including UF_IMMUTABLE, preserved in task.Meta.Flags above) are
	// already set. Only a failed rename needs the original inode's flag
	// put back, which the deferred restoreImmutable above still covers.
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return FileOutcome{}, err
	}
	ok = true

	newSize := blocks.totalBytes + overhead
	sink.Emit(Event{Kind: EventBytesWritten, Path: task.Path, Bytes: newSize})
	return FileOutcome{Path: task.Path, Kind: OutcomeCompressed, NewSize: newSize}, nil
}

// WriteDecompressed finalizes a decompress operation: writes the plain
// byte stream to a temp file, clears UF_COMPRESSED, restores metadata and
// non-decmpfs xattrs, and atomically renames over the source.
func WriteDecompressed(task FileTask, raw [][]byte, totalLen int64, dryRun bool, sink Sink) (FileOutcome, error) {
	if dryRun {
		return FileOutcome{Path: task.Path, Kind: OutcomeDecompressed, NewSize: totalLen}, nil
	}

	dir := filepath.Dir(task.Path)
	dirTimes, err := fsmeta.CaptureDirTimes(dir)
	if err != nil {
		return FileOutcome{}, err
	}
	defer fsmeta.RestoreDirTimes(dir, dirTimes)

	restoreImmutable, err := fsmeta.WithoutImmutable(task.Path)
	if err != nil {
		return FileOutcome{}, err
	}

	pf, err := newPendingFile(task.Path, task.Path, false)
	if err != nil {
		restoreImmutable()
		return FileOutcome{}, err
	}
	ok := false
	defer func() {
		if !ok {
			pf.Cleanup()
			restoreImmutable()
		}
	}()

	for _, chunk := range raw {
		if _, err := pf.File().Write(chunk); err != nil {
			return FileOutcome{}, &IOError{Op: OpWrite, Err: err}
		}
	}

	if err := fsmeta.CopyOtherXattrs(task.Path, pf.tempPath); err != nil {
		return FileOutcome{}, err
	}
	if err := fsmeta.RemoveXattr(pf.tempPath, fsmeta.DecmpfsAttr); err != nil {
		return FileOutcome{}, err
	}
	if err := fsmeta.RemoveXattr(pf.tempPath, fsmeta.ResourceForkAttr); err != nil {
		return FileOutcome{}, err
	}

	if err := fsmeta.SetFlags(pf.tempPath, task.Meta.Flags&^unix.UF_COMPRESSED); err != nil {
		return FileOutcome{}, &IOError{Op: OpChflags, Err: err}
	}
	if err := fsmeta.Restore(pf.tempPath, task.Meta); err != nil {
		return FileOutcome{}, err
	}

	// See the matching comment in WriteCompressed: past this point success
	// makes restoreImmutable a no-op by construction (new inode already has
	// its flags set above), and only a failed rename needs it.
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return FileOutcome{}, err
	}
	ok = true

	sink.Emit(Event{Kind: EventBytesWritten, Path: task.Path, Bytes: totalLen})
	return FileOutcome{Path: task.Path, Kind: OutcomeDecompressed, NewSize: totalLen}, nil
}

func concatBlocks(blocks [][]byte) []byte {
	var n int
	for _, b := range blocks {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}
