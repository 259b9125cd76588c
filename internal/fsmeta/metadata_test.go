//go:build darwin

package fsmeta

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestCaptureRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	snap, err := Capture(path)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !snap.IsRegular() {
		t.Error("expected IsRegular() true for a plain file")
	}
	if snap.IsCompressed() {
		t.Error("expected IsCompressed() false for a freshly written file")
	}
	if snap.IsImmutable() {
		t.Error("expected IsImmutable() false for a freshly written file")
	}
	if snap.Size != 5 {
		t.Errorf("Size = %d, want 5", snap.Size)
	}
}

func TestSetFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := SetFlags(path, unix.UF_COMPRESSED|unix.UF_IMMUTABLE); err != nil {
		t.Fatalf("SetFlags: %v", err)
	}
	snap, err := Capture(path)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !snap.IsCompressed() || !snap.IsImmutable() {
		t.Fatalf("flags not applied: compressed=%v immutable=%v", snap.IsCompressed(), snap.IsImmutable())
	}

	if err := SetFlags(path, snap.Flags&^unix.UF_IMMUTABLE); err != nil {
		t.Fatalf("SetFlags: %v", err)
	}
	snap, err = Capture(path)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if snap.IsImmutable() {
		t.Fatal("expected UF_IMMUTABLE cleared")
	}
	if !snap.IsCompressed() {
		t.Fatal("clearing UF_IMMUTABLE must not disturb other flag bits")
	}

	// Clean up: immutable files can't be removed by TempDir's cleanup.
	if err := unix.Chflags(path, 0); err != nil {
		t.Fatalf("chflags cleanup: %v", err)
	}
}

func TestWithoutImmutableRestores(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := unix.Chflags(path, unix.UF_IMMUTABLE); err != nil {
		t.Fatalf("chflags: %v", err)
	}

	restore, err := WithoutImmutable(path)
	if err != nil {
		t.Fatalf("WithoutImmutable: %v", err)
	}
	snap, err := Capture(path)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if snap.IsImmutable() {
		t.Fatal("expected UF_IMMUTABLE cleared while held")
	}
	if err := restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	snap, err = Capture(path)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !snap.IsImmutable() {
		t.Fatal("expected UF_IMMUTABLE restored")
	}

	if err := unix.Chflags(path, 0); err != nil {
		t.Fatalf("chflags cleanup: %v", err)
	}
}

func TestCaptureAndRestoreDirTimes(t *testing.T) {
	dir := t.TempDir()
	before, err := CaptureDirTimes(dir)
	if err != nil {
		t.Fatalf("CaptureDirTimes: %v", err)
	}

	// Creating a file inside dir advances its modified time, same as the
	// temp-file-create-then-rename sequence the Writer runs.
	if err := os.WriteFile(filepath.Join(dir, "touch"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := RestoreDirTimes(dir, before); err != nil {
		t.Fatalf("RestoreDirTimes: %v", err)
	}
	after, err := CaptureDirTimes(dir)
	if err != nil {
		t.Fatalf("CaptureDirTimes: %v", err)
	}
	if !after.Modified.Equal(before.Modified) {
		t.Errorf("Modified = %v, want %v", after.Modified, before.Modified)
	}
	if !after.Accessed.Equal(before.Accessed) {
		t.Errorf("Accessed = %v, want %v", after.Accessed, before.Accessed)
	}
}

func TestRestoreMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	before, err := Capture(path)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if err := os.Chmod(path, 0o777); err != nil {
		t.Fatalf("Chmod: %v", err)
	}

	if err := Restore(path, before); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	after, err := Capture(path)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if after.Mode&0o7777 != before.Mode&0o7777 {
		t.Errorf("mode not restored: got %o, want %o", after.Mode&0o7777, before.Mode&0o7777)
	}
	if !after.Modified.Equal(before.Modified) {
		t.Errorf("modified time not restored: got %v, want %v", after.Modified, before.Modified)
	}
}
