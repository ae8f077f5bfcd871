//go:build linux

package chdhash

import "golang.org/x/sys/unix"

// fadviseRandom hints that the index will be read at random offsets,
// which disables readahead for the query path.
// Best-effort: errors are silently ignored.
func fadviseRandom(fd int, offset, length int64) {
	_ = unix.Fadvise(fd, offset, length, unix.FADV_RANDOM)
}
