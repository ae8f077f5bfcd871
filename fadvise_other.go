//go:build !linux

package chdhash

// fadviseRandom is a no-op where posix_fadvise is unavailable.
func fadviseRandom(fd int, offset, length int64) {}
