//go:build darwin

package chdhash

import (
	"os"

	"golang.org/x/sys/unix"
)

// fallocateFile reserves size bytes for an index file using F_PREALLOCATE,
// then sets the file length.
func fallocateFile(file *os.File, size int64) error {
	fst := unix.Fstore_t{
		Flags:   unix.F_ALLOCATEALL,
		Posmode: unix.F_PEOFPOSMODE,
		Length:  size,
	}
	// Preallocation is advisory; the truncate below sets the size either way.
	_ = unix.FcntlFstore(file.Fd(), unix.F_PREALLOCATE, &fst)
	return unix.Ftruncate(int(file.Fd()), size)
}
