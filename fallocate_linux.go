//go:build linux

package chdhash

import (
	"os"

	"golang.org/x/sys/unix"
)

// fallocateFile reserves size bytes for an index file so that writes through
// the mapping cannot fault with SIGBUS when the disk fills up.
func fallocateFile(file *os.File, size int64) error {
	fd := int(file.Fd())
	// Filesystems without fallocate support (NFS, some FUSE mounts) still
	// get a correctly sized, if sparse, file.
	_ = unix.Fallocate(fd, 0, 0, size)
	return unix.Ftruncate(fd, size)
}
