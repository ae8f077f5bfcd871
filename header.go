package chdhash

import (
	"encoding/binary"

	chderrors "github.com/tamirms/chdhash/errors"
	"github.com/tamirms/chdhash/internal/chd"
)

const (
	// magic number for chdhash index files, "CHDH"
	magic = uint32(0x43484448)

	// version is the current format version
	version = uint16(0x0001)

	// headerSize is the exact size of the serialized header (64 bytes)
	headerSize = 64

	// footerSize is the exact size of the serialized footer (32 bytes)
	footerSize = 32

	// userMetadataLenSize is the length prefix of the user metadata section.
	userMetadataLenSize = 4
)

// header is the 64-byte file header.
//
// Layout:
//
//	Offset  Size  Field             Type
//	0       4     Magic             0x43484448 ("CHDH")
//	4       2     Version           0x0001
//	6       8     TotalKeys         uint64_le
//	14      4     PayloadSize       uint32_le
//	18      1     FingerprintSize   uint8 (bytes)
//	19      4     MaxDisplacement   uint32_le
//	23      4     NumBuckets        uint32_le (non-empty)
//	27      4     SingletonBuckets  uint32_le
//	31      33    Reserved          [33]byte (zero)
//
// The bucket counts are informational; lookups use only TotalKeys and the
// entry sizes.
type header struct {
	Magic            uint32   // 4 bytes: magic number
	Version          uint16   // 2 bytes: format version
	TotalKeys        uint64   // 8 bytes: total number of keys (N)
	PayloadSize      uint32   // 4 bytes: payload bytes per key (0 = MPHF only)
	FingerprintSize  uint8    // 1 byte: fingerprint bytes (0 = none)
	MaxDisplacement  uint32   // 4 bytes: largest displacement stored
	NumBuckets       uint32   // 4 bytes: non-empty buckets at build time
	SingletonBuckets uint32   // 4 bytes: buckets placed without displacement
	Reserved         [33]byte // 33 bytes: reserved (zero)
}

// encodeTo serializes the header to an existing buffer.
func (h *header) encodeTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint64(buf[6:14], h.TotalKeys)
	binary.LittleEndian.PutUint32(buf[14:18], h.PayloadSize)
	buf[18] = h.FingerprintSize
	binary.LittleEndian.PutUint32(buf[19:23], h.MaxDisplacement)
	binary.LittleEndian.PutUint32(buf[23:27], h.NumBuckets)
	binary.LittleEndian.PutUint32(buf[27:31], h.SingletonBuckets)
	copy(buf[31:64], h.Reserved[:])
}

// decodeHeader parses a 64-byte header.
func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < headerSize {
		return nil, chderrors.ErrTruncatedFile
	}

	h := &header{
		Magic:            binary.LittleEndian.Uint32(buf[0:4]),
		Version:          binary.LittleEndian.Uint16(buf[4:6]),
		TotalKeys:        binary.LittleEndian.Uint64(buf[6:14]),
		PayloadSize:      binary.LittleEndian.Uint32(buf[14:18]),
		FingerprintSize:  buf[18],
		MaxDisplacement:  binary.LittleEndian.Uint32(buf[19:23]),
		NumBuckets:       binary.LittleEndian.Uint32(buf[23:27]),
		SingletonBuckets: binary.LittleEndian.Uint32(buf[27:31]),
	}
	copy(h.Reserved[:], buf[31:64])

	if h.Magic != magic {
		return nil, chderrors.ErrInvalidMagic
	}
	if h.Version != version {
		return nil, chderrors.ErrInvalidVersion
	}
	if h.PayloadSize > uint32(maxPayloadSize) {
		return nil, chderrors.ErrCorruptedIndex
	}
	if h.FingerprintSize > uint8(maxFingerprintSize) {
		return nil, chderrors.ErrCorruptedIndex
	}
	if h.TotalKeys > chd.MaxKeys {
		return nil, chderrors.ErrCorruptedIndex
	}
	if uint64(h.NumBuckets) > h.TotalKeys || h.SingletonBuckets > h.NumBuckets {
		return nil, chderrors.ErrCorruptedIndex
	}

	return h, nil
}

// payloadSizeInt returns PayloadSize as int for arithmetic convenience.
func (h *header) payloadSizeInt() int {
	return int(h.PayloadSize)
}

// hasFingerprint returns true if the index stores fingerprints.
func (h *header) hasFingerprint() bool {
	return h.FingerprintSize > 0
}

// fingerprintSizeInt returns FingerprintSize as int for arithmetic convenience.
func (h *header) fingerprintSizeInt() int {
	return int(h.FingerprintSize)
}

// entrySize returns bytes stored per key (fingerprint + payload).
func (h *header) entrySize() int {
	return int(h.PayloadSize) + int(h.FingerprintSize)
}

// footer is the 32-byte file footer.
//
// Layout:
//
//	Offset  Size  Field                   Type
//	0       8     DisplacementRegionHash  uint64_le (xxHash64 of displacement region)
//	8       8     PayloadRegionHash       uint64_le (xxHash64 of payload region)
//	16      16    Reserved                [16]byte (zero)
type footer struct {
	DisplacementRegionHash uint64   // 8 bytes: xxHash64 of the displacement region
	PayloadRegionHash      uint64   // 8 bytes: xxHash64 of the payload region
	Reserved               [16]byte // 16 bytes: reserved for future use
}

// encodeTo serializes the footer into an existing buffer.
func (f *footer) encodeTo(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], f.DisplacementRegionHash)
	binary.LittleEndian.PutUint64(buf[8:16], f.PayloadRegionHash)
	copy(buf[16:32], f.Reserved[:])
}

// decodeFooter parses a 32-byte footer.
func decodeFooter(buf []byte) (*footer, error) {
	if len(buf) < footerSize {
		return nil, chderrors.ErrTruncatedFile
	}

	f := &footer{
		DisplacementRegionHash: binary.LittleEndian.Uint64(buf[0:8]),
		PayloadRegionHash:      binary.LittleEndian.Uint64(buf[8:16]),
	}
	copy(f.Reserved[:], buf[16:32])

	return f, nil
}

// fileLayout holds the byte offsets of every region of an index file.
type fileLayout struct {
	userMetadataOffset uint64 // length prefix of the user metadata section
	displacementOffset uint64
	payloadOffset      uint64
	footerOffset       uint64
	size               uint64 // total file size
}

// newFileLayout computes region offsets for an index of totalKeys keys.
//
//	[Header 64B][UserMetaLen 4B][UserMeta][Displacements N×4B][Payload region N×entrySize][Footer 32B]
func newFileLayout(totalKeys uint64, entrySize, userMetadataLen int) fileLayout {
	l := fileLayout{userMetadataOffset: headerSize}
	l.displacementOffset = l.userMetadataOffset + userMetadataLenSize + uint64(userMetadataLen)
	l.payloadOffset = l.displacementOffset + totalKeys*chd.DisplacementSize
	l.footerOffset = l.payloadOffset + totalKeys*uint64(entrySize)
	l.size = l.footerOffset + footerSize
	return l
}
