//go:build darwin

package fsmeta

import (
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// DecmpfsAttr and ResourceForkAttr are the two extended attributes this
// package ever reads or writes; every other xattr on a file is preserved
// untouched by the pipeline (spec §9 Open Question (a)).
const (
	DecmpfsAttr      = "com.apple.decmpfs"
	ResourceForkAttr = "com.apple.ResourceFork"
)

// GetXattr reads the named extended attribute of path in full.
func GetXattr(path, name string) ([]byte, error) {
	sz, err := unix.Getxattr(path, name, nil)
	if err != nil {
		return nil, xerrors.Errorf("getxattr(%s, %s): %w", path, name, err)
	}
	if sz == 0 {
		return nil, nil
	}
	buf := make([]byte, sz)
	n, err := unix.Getxattr(path, name, buf)
	if err != nil {
		return nil, xerrors.Errorf("getxattr(%s, %s): %w", path, name, err)
	}
	return buf[:n], nil
}

// SetXattr writes the named extended attribute of path, replacing any
// existing value.
func SetXattr(path, name string, data []byte) error {
	if err := unix.Setxattr(path, name, data, 0); err != nil {
		return xerrors.Errorf("setxattr(%s, %s): %w", path, name, err)
	}
	return nil
}

// RemoveXattr removes the named extended attribute of path, if present.
func RemoveXattr(path, name string) error {
	if err := unix.Removexattr(path, name); err != nil {
		if err == unix.ENOATTR {
			return nil
		}
		return xerrors.Errorf("removexattr(%s, %s): %w", path, name, err)
	}
	return nil
}

// ListXattr returns every extended attribute name currently set on path.
func ListXattr(path string) ([]string, error) {
	sz, err := unix.Listxattr(path, nil)
	if err != nil {
		return nil, xerrors.Errorf("listxattr(%s): %w", path, err)
	}
	if sz == 0 {
		return nil, nil
	}
	buf := make([]byte, sz)
	n, err := unix.Listxattr(path, buf)
	if err != nil {
		return nil, xerrors.Errorf("listxattr(%s): %w", path, err)
	}
	return splitNamesNUL(buf[:n]), nil
}

// CopyOtherXattrs copies every extended attribute from src to dst except
// the decmpfs-related ones the Writer manages itself, so Finder info,
// quarantine flags, and similar metadata survive compression/decompression
// untouched.
func CopyOtherXattrs(src, dst string) error {
	names, err := ListXattr(src)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == DecmpfsAttr || name == ResourceForkAttr {
			continue
		}
		data, err := GetXattr(src, name)
		if err != nil {
			return err
		}
		if err := SetXattr(dst, name, data); err != nil {
			return xerrors.Errorf("copying xattr %s: %w", name, err)
		}
	}
	return nil
}

func splitNamesNUL(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}
