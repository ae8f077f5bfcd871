//go:build !linux && !darwin

package chdhash

import "os"

// fallocateFile sets the index file length. Disk blocks may stay
// unreserved on this platform.
func fallocateFile(file *os.File, size int64) error {
	return file.Truncate(size)
}
