//go:build unix

package main

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// maxRSS returns the peak resident set size of the process in bytes.
func maxRSS() uint64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	rss := uint64(ru.Maxrss)
	if runtime.GOOS != "darwin" {
		rss *= 1024 // kilobytes everywhere except macOS
	}
	return rss
}
