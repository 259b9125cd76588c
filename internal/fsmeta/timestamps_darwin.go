//go:build darwin

package fsmeta

/*
#include <sys/attr.h>
#include <unistd.h>
#include <string.h>
#include <errno.h>

struct times4 {
	struct timespec created;
	struct timespec modified;
	struct timespec accessed;
	struct timespec added;
};

static int set_times4(const char *path, struct times4 *t) {
	struct attrlist al;
	memset(&al, 0, sizeof(al));
	al.bitmapcount = ATTR_BIT_MAP_COUNT;
	al.commonattr = ATTR_CMN_CRTIME | ATTR_CMN_MODTIME | ATTR_CMN_ACCTIME | ATTR_CMN_ADDEDTIME;
	return setattrlist(path, &al, t, sizeof(*t), 0);
}

struct times2 {
	struct timespec modified;
	struct timespec accessed;
};

static int set_times2(const char *path, struct times2 *t) {
	struct attrlist al;
	memset(&al, 0, sizeof(al));
	al.bitmapcount = ATTR_BIT_MAP_COUNT;
	al.commonattr = ATTR_CMN_MODTIME | ATTR_CMN_ACCTIME;
	return setattrlist(path, &al, t, sizeof(*t), 0);
}
*/
import "C"

import (
	"time"
	"unsafe"

	"golang.org/x/xerrors"
)

// setTimestamps restores all four HFS+/APFS timestamps in a single
// setattrlist(2) call, in the field order the kernel expects for the
// ATTR_CMN_CRTIME|MODTIME|ACCTIME|ADDEDTIME bitmap (spec §6: "setattrlist
// or equivalent to restore all four timestamps").
func setTimestamps(path string, s Snapshot) error {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	var t C.struct_times4
	t.created = toTimespec(s.Created)
	t.modified = toTimespec(s.Modified)
	t.accessed = toTimespec(s.Accessed)
	t.added = toTimespec(s.Added)

	if rc, err := C.set_times4(cpath, &t); rc != 0 {
		return xerrors.Errorf("setattrlist(%s): %w", path, err)
	}
	return nil
}

// setDirTimestamps restores a directory's modified/accessed times in a
// single setattrlist(2) call, leaving its creation/added times untouched
// (unlike setTimestamps, which restores all four on a regular file).
func setDirTimestamps(path string, t DirTimes) error {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	var ct C.struct_times2
	ct.modified = toTimespec(t.Modified)
	ct.accessed = toTimespec(t.Accessed)

	if rc, err := C.set_times2(cpath, &ct); rc != 0 {
		return xerrors.Errorf("setattrlist(%s): %w", path, err)
	}
	return nil
}

func toTimespec(t time.Time) C.struct_timespec {
	return C.struct_timespec{
		tv_sec:  C.long(t.Unix()),
		tv_nsec: C.long(t.Nanosecond()),
	}
}
