package chd

import (
	"encoding/binary"

	chderrors "github.com/tamirms/chdhash/errors"
	"github.com/tamirms/chdhash/internal/bits"
	"github.com/tamirms/chdhash/internal/fnv"
)

// DisplacementSize is the encoded size of one displacement entry.
const DisplacementSize = 4

// Slot returns the slot of key in a table described by displacements.
//
// The result is only meaningful for keys that were part of the build.
// Other keys map to an arbitrary slot, or to ErrNotFound when their anchor
// is an empty bucket.
func Slot(displacements []int32, key string) (uint32, error) {
	n := uint32(len(displacements))
	if n == 0 {
		return 0, chderrors.ErrNotFound
	}
	return resolve(displacements[fnv.Index(0, key, n)], key, n)
}

// SlotLE is Slot over a little-endian encoded displacement region of
// n entries, as written by EncodeLE. Used by memory-mapped indexes.
func SlotLE(region []byte, n uint32, key string) (uint32, error) {
	if n == 0 {
		return 0, chderrors.ErrNotFound
	}
	if uint64(len(region)) < uint64(n)*DisplacementSize {
		return 0, chderrors.ErrCorruptedIndex
	}
	off := anchorOffset(fnv.Index(0, key, n))
	d := int32(binary.LittleEndian.Uint32(region[off : off+DisplacementSize]))
	return resolve(d, key, n)
}

// anchorOffset is the byte offset of an anchor's entry in an encoded region.
// Anchors reach 2^31-2, so the product needs 64 bits.
func anchorOffset(anchor uint32) uint64 {
	return uint64(anchor) * DisplacementSize
}

// resolve maps a displacement entry to a slot.
func resolve(d int32, key string, n uint32) (uint32, error) {
	switch {
	case d > 0:
		return fnv.Index(uint32(d), key, n), nil
	case d < 0:
		slot := uint32(-(d + 1))
		if slot >= n {
			return 0, chderrors.ErrCorruptedIndex
		}
		return slot, nil
	default:
		return 0, chderrors.ErrNotFound
	}
}

// EncodeLE writes displacements to dst as little-endian int32 values and
// returns the number of bytes written. dst must hold len(d)*DisplacementSize bytes.
func EncodeLE(dst []byte, d []int32) int {
	for i, v := range d {
		binary.LittleEndian.PutUint32(dst[i*DisplacementSize:], uint32(v))
	}
	return len(d) * DisplacementSize
}

// DecodeLE reads n little-endian displacement entries from src.
func DecodeLE(src []byte, n uint32) ([]int32, error) {
	if uint64(len(src)) < uint64(n)*DisplacementSize {
		return nil, chderrors.ErrTruncatedFile
	}
	d := make([]int32, n)
	for i := range d {
		d[i] = int32(binary.LittleEndian.Uint32(src[i*DisplacementSize:]))
	}
	return d, nil
}

// Validate checks structural invariants that hold for every table Solve
// produces: singleton markers name in-range slots, no two markers name the
// same slot. It cannot prove the full bijection without the original keys.
func Validate(displacements []int32) error {
	if len(displacements) > MaxKeys {
		return chderrors.ErrTooManyKeys
	}
	n := uint32(len(displacements))
	seen := bits.NewVector(n)
	for _, d := range displacements {
		if d >= 0 {
			continue
		}
		slot := uint32(-(d + 1))
		if slot >= n || seen.IsSet(slot) {
			return chderrors.ErrCorruptedIndex
		}
		seen.Set(slot)
	}
	return nil
}
