//go:build darwin

package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/distr1/hfscompress/internal/codec"
)

func newZlibOptions(op Operation, threads int) Options {
	return Options{
		Op:       op,
		NewCodec: func() (codec.Codec, error) { return codec.New("zlib", 9) },
		Threads:  threads,
		InFlight: threads,
	}
}

func TestRunCompressDecompressRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	content := bytes.Repeat([]byte("hfscompress round trip payload "), 4096)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var stats Stats
	if err := Run(context.Background(), []string{dir}, newZlibOptions(OpCompress, 2), &stats); err != nil {
		t.Fatalf("compress Run: %v", err)
	}
	if stats.Compressed != 1 {
		t.Fatalf("stats.Compressed = %d, want 1", stats.Compressed)
	}

	result, present, err := Info(path)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if !present {
		t.Fatal("expected Info to report the file as compressed")
	}
	if result.Algorithm != "zlib" {
		t.Errorf("Algorithm = %q, want zlib", result.Algorithm)
	}
	if result.UncompressedSize != uint64(len(content)) {
		t.Errorf("UncompressedSize = %d, want %d", result.UncompressedSize, len(content))
	}

	stats = Stats{}
	if err := Run(context.Background(), []string{dir}, newZlibOptions(OpDecompress, 2), &stats); err != nil {
		t.Fatalf("decompress Run: %v", err)
	}
	if stats.Decompressed != 1 {
		t.Fatalf("stats.Decompressed = %d, want 1", stats.Decompressed)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("decompressed content does not match original")
	}
}

func TestRunSkipsAlreadyCompressedOnSecondCompress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	content := bytes.Repeat([]byte("a"), 200000)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var stats Stats
	if err := Run(context.Background(), []string{dir}, newZlibOptions(OpCompress, 2), &stats); err != nil {
		t.Fatalf("compress Run: %v", err)
	}
	if stats.Compressed != 1 {
		t.Fatalf("stats.Compressed = %d, want 1", stats.Compressed)
	}

	stats = Stats{}
	if err := Run(context.Background(), []string{dir}, newZlibOptions(OpCompress, 2), &stats); err != nil {
		t.Fatalf("second compress Run: %v", err)
	}
	if stats.SkippedAlreadyCompressed != 1 {
		t.Fatalf("stats.SkippedAlreadyCompressed = %d, want 1", stats.SkippedAlreadyCompressed)
	}
}

func TestRunSkipsNotCompressedOnDecompress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(path, []byte("never compressed"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var stats Stats
	if err := Run(context.Background(), []string{dir}, newZlibOptions(OpDecompress, 2), &stats); err != nil {
		t.Fatalf("decompress Run: %v", err)
	}
	if stats.SkippedNotCompressed != 1 {
		t.Fatalf("stats.SkippedNotCompressed = %d, want 1", stats.SkippedNotCompressed)
	}
}

func TestRunSkipsWouldGrowForTinyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiny.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var stats Stats
	if err := Run(context.Background(), []string{dir}, newZlibOptions(OpCompress, 2), &stats); err != nil {
		t.Fatalf("compress Run: %v", err)
	}
	if stats.SkippedWouldGrow != 1 {
		t.Fatalf("stats.SkippedWouldGrow = %d, want 1", stats.SkippedWouldGrow)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "x" {
		t.Fatal("would_grow skip must leave the source untouched")
	}
}

func TestRunDryRunDoesNotModifyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	content := bytes.Repeat([]byte("dry run content "), 4096)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	opts := newZlibOptions(OpCompress, 2)
	opts.DryRun = true
	var stats Stats
	if err := Run(context.Background(), []string{dir}, opts, &stats); err != nil {
		t.Fatalf("dry-run compress Run: %v", err)
	}
	if stats.Compressed != 1 {
		t.Fatalf("stats.Compressed = %d, want 1", stats.Compressed)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("dry-run must not modify the source file")
	}
	if _, present, err := ReadDecmpfsState(path); err == nil && present {
		t.Fatal("dry-run must not write the decmpfs xattr")
	}
}
