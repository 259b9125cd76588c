// Package walker enumerates the regular files under a set of root paths,
// in the traversal order path/filepath.WalkDir produces, deduplicating hard
// links and nested roots along the way (spec §4.1).
package walker

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/xerrors"

	"github.com/distr1/hfscompress/internal/fsmeta"
)

// SkipReason explains why a path was not yielded as a task.
type SkipReason int

const (
	_ SkipReason = iota
	SkipNonRegular
	SkipHardlink
	SkipHardlinkUnsafe
)

func (r SkipReason) String() string {
	switch r {
	case SkipNonRegular:
		return "non_regular"
	case SkipHardlink:
		return "hardlink"
	case SkipHardlinkUnsafe:
		return "hardlink_unsafe"
	default:
		return "unknown"
	}
}

// Entry is one item the Walker yields: either a processable file or a
// skipped path annotated with why.
type Entry struct {
	Path string
	Meta fsmeta.Snapshot
	Skip SkipReason // zero value means "not skipped"
	Err  error
}

// Skipped reports whether this entry was excluded from processing.
func (e Entry) Skipped() bool { return e.Skip != 0 || e.Err != nil }

// Mode controls whether the Walker applies the compress-path's stricter
// hard-link rule.
type Mode int

const (
	// ModeCompress refuses to split inodes: any file with Nlink > 1 is
	// skipped with SkipHardlinkUnsafe.
	ModeCompress Mode = iota
	// ModeOther, used for every non-compress operation, only deduplicates
	// repeated (dev, ino) pairs within this run; it doesn't refuse
	// hard-linked files outright.
	ModeOther
)

// Walk enumerates every regular file reachable from roots and calls fn
// once per Entry, in deterministic per-run traversal order. A root nested
// under another supplied root (spec §4.1 "nested-root dedup": "if both /a
// and /a/b are given, /a/b is processed only once") is resolved up front
// from the root list itself, so the dedup holds regardless of the order
// roots are given in.
func Walk(roots []string, mode Mode, fn func(Entry) error) error {
	absRoots := make([]string, 0, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return xerrors.Errorf("abs(%s): %w", root, err)
		}
		absRoots = append(absRoots, abs)
	}
	absRoots = dedupNestedRoots(absRoots)

	seenInode := make(map[[2]uint64]bool) // (dev, ino) -> already emitted

	for _, abs := range absRoots {
		err := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			meta, err := fsmeta.Capture(path)
			if err != nil {
				return fn(Entry{Path: path, Err: err})
			}

			if d.Type()&fs.ModeSymlink != 0 || !meta.IsRegular() {
				return fn(Entry{Path: path, Meta: meta, Skip: SkipNonRegular})
			}

			key := [2]uint64{meta.Dev, meta.Ino}
			if meta.Nlink > 1 {
				if mode == ModeCompress {
					return fn(Entry{Path: path, Meta: meta, Skip: SkipHardlinkUnsafe})
				}
				if seenInode[key] {
					return fn(Entry{Path: path, Meta: meta, Skip: SkipHardlink})
				}
			}
			seenInode[key] = true
			return fn(Entry{Path: path, Meta: meta})
		})
		if err != nil {
			return xerrors.Errorf("walking %s: %w", abs, err)
		}
	}
	return nil
}

// dedupNestedRoots drops any root that is equal to, or nested under,
// another root in the list, independent of input order. Sorting
// lexicographically first guarantees every parent path sorts before any
// path it is a prefix of, so a single left-to-right pass is enough to
// find and keep only the outermost roots.
func dedupNestedRoots(absRoots []string) []string {
	sorted := append([]string(nil), absRoots...)
	sort.Strings(sorted)

	var kept []string
	for _, r := range sorted {
		covered := false
		for _, k := range kept {
			if r == k || strings.HasPrefix(r, k+string(filepath.Separator)) {
				covered = true
				break
			}
		}
		if !covered {
			kept = append(kept, r)
		}
	}
	return kept
}
