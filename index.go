package chdhash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"
	chderrors "github.com/tamirms/chdhash/errors"
	"github.com/tamirms/chdhash/internal/chd"
	"github.com/tamirms/chdhash/internal/encoding"
)

// minFileSize is the size of an index with no keys and no user metadata.
const minFileSize = headerSize + userMetadataLenSize + footerSize

// Index is a read-only view of a chdhash index file.
//
// Lookups may run concurrently. Close must not overlap with them, and the
// Index is unusable once Close returns.
type Index struct {
	mmap mmap.MMap // nil for OpenBytes
	data []byte

	header       *header
	userMetadata []byte
	layout       fileLayout

	numKeys       uint32
	displacements []byte // little-endian int32 per anchor
	entries       []byte // per-slot fingerprint + payload
	entrySize     int

	closed atomic.Bool
}

// Stats summarizes an index file.
type Stats struct {
	NumKeys          uint64
	BitsPerKey       float64
	PayloadSize      int
	FingerprintSize  int
	MaxDisplacement  uint32
	NumBuckets       uint32
	SingletonBuckets uint32
	IndexSize        int64
}

// Open memory-maps the index at path. The descriptor is closed before
// Open returns.
func Open(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chdhash: open %s: %w", path, err)
	}
	defer f.Close()
	return OpenFile(f)
}

// OpenFile memory-maps f. The mapping outlives the descriptor, so the caller
// may close f as soon as OpenFile returns.
func OpenFile(f *os.File) (*Index, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("chdhash: stat %s: %w", f.Name(), err)
	}
	fileSize := fi.Size()
	if fileSize < int64(minFileSize) {
		return nil, chderrors.ErrTruncatedFile
	}

	// Queries touch one displacement and one entry at unrelated offsets.
	fadviseRandom(int(f.Fd()), 0, fileSize)

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("chdhash: mmap %s: %w", f.Name(), err)
	}

	idx := &Index{
		mmap: mm,
		data: []byte(mm),
	}
	if err := idx.initFromData(); err != nil {
		return nil, errors.Join(err, idx.Close())
	}
	return idx, nil
}

// OpenBytes reads an index held in memory, for example one embedded in a
// binary. data is used in place and must not change while the Index is open.
func OpenBytes(data []byte) (*Index, error) {
	if len(data) < minFileSize {
		return nil, chderrors.ErrTruncatedFile
	}
	idx := &Index{data: data}
	if err := idx.initFromData(); err != nil {
		return nil, err
	}
	return idx, nil
}

// initFromData parses the header and user metadata and locates the
// displacement and entry regions. Footer decoding is deferred to Verify().
func (idx *Index) initFromData() error {
	fileSize := uint64(len(idx.data))

	hdr, err := decodeHeader(idx.data[:headerSize])
	if err != nil {
		return err
	}
	idx.header = hdr

	offset := uint64(headerSize)
	if offset+userMetadataLenSize > fileSize {
		return chderrors.ErrTruncatedFile
	}
	userMetadataLen := binary.LittleEndian.Uint32(idx.data[offset:])
	offset += userMetadataLenSize
	if offset+uint64(userMetadataLen) > fileSize {
		return chderrors.ErrTruncatedFile
	}
	idx.userMetadata = idx.data[offset : offset+uint64(userMetadataLen)]

	idx.layout = newFileLayout(hdr.TotalKeys, hdr.entrySize(), int(userMetadataLen))
	switch {
	case idx.layout.size > fileSize:
		return chderrors.ErrTruncatedFile
	case idx.layout.size < fileSize:
		return fmt.Errorf("%w: %d trailing bytes", chderrors.ErrCorruptedIndex, fileSize-idx.layout.size)
	}

	idx.numKeys = uint32(hdr.TotalKeys)
	idx.entrySize = hdr.entrySize()
	idx.displacements = idx.data[idx.layout.displacementOffset:idx.layout.payloadOffset]
	idx.entries = idx.data[idx.layout.payloadOffset:idx.layout.footerOffset]
	return nil
}

// Close unmaps the index. Calling it again is a no-op.
func (idx *Index) Close() error {
	if idx.closed.Swap(true) || idx.mmap == nil {
		return nil
	}
	return idx.mmap.Unmap()
}

// Query returns the slot (0-based rank) for a key.
// This is the core MPHF operation.
//
// For keys outside the build set the result is an arbitrary slot unless the
// index stores fingerprints, in which case ErrFingerprintMismatch is
// returned except with probability 2^-(8*FingerprintSize).
func (idx *Index) Query(key string) (uint64, error) {
	if idx.closed.Load() {
		return 0, chderrors.ErrIndexClosed
	}
	return idx.queryInternal(key)
}

// queryInternal resolves the slot and verifies the fingerprint.
func (idx *Index) queryInternal(key string) (uint64, error) {
	slot, err := chd.SlotLE(idx.displacements, idx.numKeys, key)
	if err != nil {
		return 0, err
	}

	if idx.header.hasFingerprint() {
		fpSize := idx.header.fingerprintSizeInt()
		stored := encoding.ReadFP(idx.entries[int(slot)*idx.entrySize:], fpSize)
		if stored != fingerprint(key, fpSize) {
			return 0, chderrors.ErrFingerprintMismatch
		}
	}

	return uint64(slot), nil
}

// QueryPayload returns the payload for a key as a uint64.
// Payloads are stored in little-endian format and can be 1-8 bytes.
// Returns chderrors.ErrNoPayload if the index has no payload data.
func (idx *Index) QueryPayload(key string) (uint64, error) {
	if idx.closed.Load() {
		return 0, chderrors.ErrIndexClosed
	}

	if idx.header.PayloadSize == 0 {
		return 0, chderrors.ErrNoPayload
	}

	// Get the slot first (includes fingerprint verification if present)
	slot, err := idx.queryInternal(key)
	if err != nil {
		return 0, err
	}

	_, payload := encoding.ReadEntry(idx.entries, int(slot),
		idx.header.fingerprintSizeInt(), idx.header.payloadSizeInt())
	return payload, nil
}

// NumKeys returns the total number of keys in the index.
func (idx *Index) NumKeys() uint64 {
	return idx.header.TotalKeys
}

// HasPayload returns whether the index stores payloads.
func (idx *Index) HasPayload() bool {
	return idx.header.PayloadSize > 0
}

// PayloadSize returns the payload size per key.
func (idx *Index) PayloadSize() int {
	return idx.header.payloadSizeInt()
}

// UserMetadata returns the variable-length user-defined metadata.
// The returned slice is backed by the memory-mapped file data.
func (idx *Index) UserMetadata() []byte {
	return idx.userMetadata
}

// GetStats returns statistics for an index file.
func GetStats(path string) (*Stats, error) {
	idx, err := Open(path)
	if err != nil {
		return nil, err
	}

	return idx.Stats(), idx.Close()
}

// Stats returns statistics for the index.
func (idx *Index) Stats() *Stats {
	totalSize := int64(len(idx.data))

	bitsPerKey := float64(0)
	if idx.header.TotalKeys > 0 {
		bitsPerKey = float64(totalSize*8) / float64(idx.header.TotalKeys)
	}

	return &Stats{
		NumKeys:          idx.header.TotalKeys,
		BitsPerKey:       bitsPerKey,
		PayloadSize:      idx.header.payloadSizeInt(),
		FingerprintSize:  idx.header.fingerprintSizeInt(),
		MaxDisplacement:  idx.header.MaxDisplacement,
		NumBuckets:       idx.header.NumBuckets,
		SingletonBuckets: idx.header.SingletonBuckets,
		IndexSize:        totalSize,
	}
}

// Verify checks the integrity of the entire index: the xxHash64 checksums
// of the displacement and entry regions, and the structure of the
// displacement array (singleton markers in range and unique).
//
// The footer is decoded on each Verify call rather than at Open time,
// so Open() only touches the front of the file.
func (idx *Index) Verify() error {
	if idx.closed.Load() {
		return chderrors.ErrIndexClosed
	}

	ft, err := decodeFooter(idx.data[idx.layout.footerOffset:])
	if err != nil {
		return err
	}

	if xxhash.Sum64(idx.displacements) != ft.DisplacementRegionHash {
		return fmt.Errorf("%w: displacement region", chderrors.ErrChecksumFailed)
	}
	if xxhash.Sum64(idx.entries) != ft.PayloadRegionHash {
		return fmt.Errorf("%w: payload region", chderrors.ErrChecksumFailed)
	}

	d, err := chd.DecodeLE(idx.displacements, idx.numKeys)
	if err != nil {
		return err
	}
	return chd.Validate(d)
}
