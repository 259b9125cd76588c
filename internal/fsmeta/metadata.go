//go:build darwin

// Package fsmeta wraps the macOS filesystem capabilities transparent
// compression needs beyond what the Go standard library exposes: extended
// attributes, UF_COMPRESSED/UF_IMMUTABLE chflags, clonefile, and the four
// HFS+/APFS timestamps (created, modified, accessed, added).
package fsmeta

import (
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// Snapshot is the metadata the Reader captures once, before emitting any
// blocks, and the Writer restores once processing finishes (spec §4.2,
// §4.4 step 8).
type Snapshot struct {
	Dev, Ino uint64
	Nlink    uint64
	Mode     uint32
	Uid, Gid uint32
	Size     int64
	Flags    uint32

	Created  time.Time
	Modified time.Time
	Accessed time.Time
	// Added is HFS+/APFS's fourth timestamp ("date added"), exposed via
	// setattrlist's ATTR_CMN_ADDEDTIME; it has no POSIX stat equivalent and
	// is approximated here from birthtime where the platform doesn't
	// surface it separately.
	Added time.Time
}

// IsRegular reports whether the captured mode bits describe a regular
// file; the Walker uses this to exclude symlinks, sockets, FIFOs, and
// devices per spec §4.1.
func (s Snapshot) IsRegular() bool {
	return s.Mode&unix.S_IFMT == unix.S_IFREG
}

// IsCompressed reports whether UF_COMPRESSED was set at capture time.
func (s Snapshot) IsCompressed() bool {
	return s.Flags&unix.UF_COMPRESSED != 0
}

// IsImmutable reports whether UF_IMMUTABLE was set at capture time.
func (s Snapshot) IsImmutable() bool {
	return s.Flags&unix.UF_IMMUTABLE != 0
}

// Capture stats path and returns its metadata snapshot. It never follows a
// trailing symlink component differently than lstat would: the Walker has
// already resolved which dev+inode it cares about.
func Capture(path string) (Snapshot, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return Snapshot{}, xerrors.Errorf("lstat(%s): %w", path, err)
	}
	return Snapshot{
		Dev:      uint64(st.Dev),
		Ino:      uint64(st.Ino),
		Nlink:    uint64(st.Nlink),
		Mode:     uint32(st.Mode),
		Uid:      st.Uid,
		Gid:      st.Gid,
		Size:     st.Size,
		Flags:    uint32(st.Flags),
		Created:  time.Unix(st.Birthtimespec.Unix()),
		Modified: time.Unix(st.Mtimespec.Unix()),
		Accessed: time.Unix(st.Atimespec.Unix()),
		Added:    time.Unix(st.Birthtimespec.Unix()),
	}, nil
}

// Restore applies owner/group/mode, then all four timestamps, to path, in
// that order (spec §4.4 step 8: "restore owner/group/mode, then restore
// four timestamps"). It does not touch flags; callers set UF_COMPRESSED (or
// clear it) separately, since that must happen before the rename while
// Restore typically runs on the not-yet-visible temp file.
func Restore(path string, s Snapshot) error {
	if err := unix.Chown(path, int(s.Uid), int(s.Gid)); err != nil {
		return xerrors.Errorf("chown(%s): %w", path, err)
	}
	if err := unix.Chmod(path, uint32(s.Mode)&0o7777); err != nil {
		return xerrors.Errorf("chmod(%s): %w", path, err)
	}
	if err := setTimestamps(path, s); err != nil {
		return xerrors.Errorf("restoring timestamps on %s: %w", path, err)
	}
	return nil
}

// WithoutImmutable clears UF_IMMUTABLE on path if set, returning a restore
// function that puts it back; callers defer the restore so every exit path
// re-arms the flag (spec §9: "every chflags clearing of UF_IMMUTABLE has a
// paired restoration on all exit paths").
func WithoutImmutable(path string) (restore func() error, err error) {
	st, err := Capture(path)
	if err != nil {
		return nil, err
	}
	if !st.IsImmutable() {
		return func() error { return nil }, nil
	}
	if err := unix.Chflags(path, int(st.Flags)&^unix.UF_IMMUTABLE); err != nil {
		return nil, xerrors.Errorf("chflags(%s, -UF_IMMUTABLE): %w", path, err)
	}
	return func() error {
		return unix.Chflags(path, int(st.Flags))
	}, nil
}

// SetCompressed sets or clears UF_COMPRESSED on path, preserving every
// other flag bit currently set.
func SetCompressed(path string, compressed bool) error {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return xerrors.Errorf("lstat(%s): %w", path, err)
	}
	flags := int(st.Flags)
	if compressed {
		flags |= unix.UF_COMPRESSED
	} else {
		flags &^= unix.UF_COMPRESSED
	}
	if err := unix.Chflags(path, flags); err != nil {
		return xerrors.Errorf("chflags(%s): %w", path, err)
	}
	return nil
}

// SetFlags sets path's chflags bitmask verbatim, used by the Writer on the
// finished temp file before its rename, so that every bit (including a
// preserved UF_IMMUTABLE) is reinstated in one call.
func SetFlags(path string, flags uint32) error {
	if err := unix.Chflags(path, int(flags)); err != nil {
		return xerrors.Errorf("chflags(%s): %w", path, err)
	}
	return nil
}

// DirTimes captures the subset of a directory's metadata that a
// temp-file-create-then-rename sequence disturbs: its own modified/accessed
// timestamps (spec §4.4: "containing directory's modified/accessed times
// are restored only if the directory was touched during the operation").
type DirTimes struct {
	Modified time.Time
	Accessed time.Time
}

// CaptureDirTimes stats dir and returns its current modified/accessed
// times, to be handed to RestoreDirTimes once the operation that touches
// dir (temp-file creation, rename) has finished.
func CaptureDirTimes(dir string) (DirTimes, error) {
	var st unix.Stat_t
	if err := unix.Lstat(dir, &st); err != nil {
		return DirTimes{}, xerrors.Errorf("lstat(%s): %w", dir, err)
	}
	return DirTimes{
		Modified: time.Unix(st.Mtimespec.Unix()),
		Accessed: time.Unix(st.Atimespec.Unix()),
	}, nil
}

// RestoreDirTimes puts dir's modified/accessed times back to what
// CaptureDirTimes observed before it was used as scratch space.
func RestoreDirTimes(dir string, t DirTimes) error {
	if err := setDirTimestamps(dir, t); err != nil {
		return xerrors.Errorf("restoring directory times on %s: %w", dir, err)
	}
	return nil
}
