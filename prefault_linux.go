//go:build linux

package chdhash

import "golang.org/x/sys/unix"

// MADV_POPULATE_WRITE, Linux 5.14+.
const madvPopulateWrite = 23

// prefaultRegion populates writable pages of an index mapping ahead of the
// parallel entry writers. Older kernels reject the advice with EINVAL,
// which is ignored.
func prefaultRegion(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Madvise(data, madvPopulateWrite)
}
