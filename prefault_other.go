//go:build !linux

package chdhash

// prefaultRegion is a no-op without MADV_POPULATE_WRITE.
func prefaultRegion(data []byte) {}
