package chdhash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"
	"github.com/tamirms/chdhash/internal/chd"
)

// indexWriter handles writing index data to disk using mmap-based zero-copy writes.
// File layout: [Header 64B][UserMetaLen 4B][UserMeta][Displacements N×4B][Payload Region N×entrySize][Footer 32B]
//
// Every region has a fixed size known from the key count, so the file is
// allocated at its final size up front and never truncated.
type indexWriter struct {
	file *os.File
	mmap mmap.MMap // Memory-mapped region
	data []byte    // View into mmap for direct writes

	layout       fileLayout
	header       header
	userMetadata []byte
}

// newIndexWriter creates a new mmap-based index writer.
// The file is pre-allocated and memory-mapped for zero-copy writes.
func newIndexWriter(path string, cfg *buildConfig) (*indexWriter, error) {
	layout := newFileLayout(cfg.totalKeys, cfg.entrySize(), len(cfg.userMetadata))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create index file: %w", err)
	}

	// Pre-allocate disk blocks to prevent SIGBUS on disk full
	if err := fallocateFile(file, int64(layout.size)); err != nil {
		primaryErr := fmt.Errorf("failed to allocate disk space: %w", err)
		return nil, errors.Join(primaryErr, file.Close())
	}

	mm, err := mmap.MapRegion(file, int(layout.size), mmap.RDWR, 0, 0)
	if err != nil {
		primaryErr := fmt.Errorf("failed to mmap file: %w", err)
		return nil, errors.Join(primaryErr, file.Close())
	}

	iw := &indexWriter{
		file:         file,
		mmap:         mm,
		data:         []byte(mm),
		layout:       layout,
		userMetadata: cfg.userMetadata,
		header: header{
			Magic:           magic,
			Version:         version,
			TotalKeys:       cfg.totalKeys,
			PayloadSize:     uint32(cfg.payloadSize),
			FingerprintSize: uint8(cfg.fingerprintSize),
		},
	}

	// Prefault the entry region for parallel writes.
	// On Linux 5.14+, uses MADV_POPULATE_WRITE. No-op on other platforms.
	prefaultRegion(iw.payloadRegion())

	return iw, nil
}

// displacementRegion returns the mmap view of the displacement array.
func (iw *indexWriter) displacementRegion() []byte {
	return iw.data[iw.layout.displacementOffset:iw.layout.payloadOffset]
}

// payloadRegion returns the mmap view of the per-slot entries.
// Workers may write disjoint slots concurrently.
func (iw *indexWriter) payloadRegion() []byte {
	return iw.data[iw.layout.payloadOffset:iw.layout.footerOffset]
}

// writeDisplacements encodes the displacement array into its region.
func (iw *indexWriter) writeDisplacements(d []int32) error {
	region := iw.displacementRegion()
	if len(d)*chd.DisplacementSize != len(region) {
		return fmt.Errorf("writeDisplacements: %d entries for a %d-byte region", len(d), len(region))
	}
	chd.EncodeLE(region, d)
	return nil
}

// setStats records construction statistics in the header.
func (iw *indexWriter) setStats(s BuildStats) {
	iw.header.MaxDisplacement = s.MaxDisplacement
	iw.header.NumBuckets = uint32(s.NumBuckets)
	iw.header.SingletonBuckets = uint32(s.SingletonBuckets)
}

// finalize writes the header, user metadata, and footer, then flushes and
// closes the file. The displacement and payload regions must be complete.
// On error, delegates to close() for idempotent cleanup.
// On success, nils mmap/file so that close() is a safe no-op.
func (iw *indexWriter) finalize() error {
	iw.header.encodeTo(iw.data[0:headerSize])

	// UserMetadata: [length 4B][data]
	binary.LittleEndian.PutUint32(iw.data[iw.layout.userMetadataOffset:], uint32(len(iw.userMetadata)))
	copy(iw.data[iw.layout.userMetadataOffset+userMetadataLenSize:], iw.userMetadata)

	ftr := footer{
		DisplacementRegionHash: xxhash.Sum64(iw.displacementRegion()),
		PayloadRegionHash:      xxhash.Sum64(iw.payloadRegion()),
	}
	ftr.encodeTo(iw.data[iw.layout.footerOffset:])

	// Flush dirty pages to file (ensures writes visible before unmap)
	if err := iw.mmap.Flush(); err != nil {
		primaryErr := fmt.Errorf("mmap flush failed: %w", err)
		return errors.Join(primaryErr, iw.close())
	}

	// Nil mmap regardless of outcome to prevent close() from retrying.
	unmapErr := iw.mmap.Unmap()
	iw.mmap = nil
	iw.data = nil
	if unmapErr != nil {
		primaryErr := fmt.Errorf("mmap unmap failed: %w", unmapErr)
		return errors.Join(primaryErr, iw.close())
	}

	closeErr := iw.file.Close()
	iw.file = nil
	return closeErr
}

// close closes the writer without finalizing (for error cleanup).
// Idempotent: safe to call multiple times.
func (iw *indexWriter) close() error {
	var unmapErr error
	if iw.mmap != nil {
		unmapErr = iw.mmap.Unmap()
		iw.mmap = nil
		iw.data = nil
	}
	var closeErr error
	if iw.file != nil {
		closeErr = iw.file.Close()
		iw.file = nil
	}
	return errors.Join(unmapErr, closeErr)
}
