//go:build darwin

package fsmeta

/*
#include <sys/clonefile.h>
#include <errno.h>
*/
import "C"

import (
	"unsafe"

	"golang.org/x/xerrors"
)

// CloneFile creates dst as a copy-on-write clone of src on the same
// volume, used by the Writer as the preferred way to seed a new file with
// the source's data fork and ordinary attributes before the compression
// metadata is applied (spec §4.4 step 2, §6 "clonefile for same-volume
// atomic cloning"). It is an optimization for metadata inheritance, not
// for atomicity: the rename is still what makes the overall replace atomic
// (spec §9).
func CloneFile(src, dst string) error {
	csrc := C.CString(src)
	defer C.free(unsafe.Pointer(csrc))
	cdst := C.CString(dst)
	defer C.free(unsafe.Pointer(cdst))

	if rc, err := C.clonefile(csrc, cdst, 0); rc != 0 {
		return xerrors.Errorf("clonefile(%s, %s): %w", src, dst, err)
	}
	return nil
}
