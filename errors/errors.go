// Package errors defines all exported error sentinels for the chdhash library.
//
// This is the single source of truth for error values. Both the top-level
// chdhash package and internal packages import from here, ensuring
// errors.Is checks work across package boundaries.
package errors

import "errors"

// Build errors
var (
	ErrBuilderClosed    = errors.New("chdhash: builder is closed")
	ErrTooManyKeys      = errors.New("chdhash: key count exceeds maximum (2^31-1)")
	ErrPayloadOverflow  = errors.New("chdhash: payload value exceeds configured PayloadSize capacity")
	ErrDuplicateKey     = errors.New("chdhash: duplicate key detected")
	ErrKeyCountMismatch = errors.New("chdhash: key count mismatch")
)

// Construction errors
var (
	ErrPayloadTooLarge       = errors.New("chdhash: PayloadSize exceeds maximum 8 bytes")
	ErrFingerprintTooLarge   = errors.New("chdhash: FingerprintSize exceeds maximum (4 bytes)")
	ErrInvalidMaxTrials      = errors.New("chdhash: MaxTrials must be positive and keep every displacement within int32")
	ErrDisplacementExhausted = errors.New("chdhash: displacement search exhausted - retry with a different seed range")
)

// Index errors
var (
	ErrInvalidMagic   = errors.New("chdhash: invalid magic number")
	ErrInvalidVersion = errors.New("chdhash: unsupported version")
	ErrChecksumFailed = errors.New("chdhash: file checksum verification failed")
	ErrTruncatedFile  = errors.New("chdhash: index file is truncated")
	ErrCorruptedIndex = errors.New("chdhash: index data is corrupted")
	ErrNotFound       = errors.New("chdhash: key not found")
)

// Query errors
var (
	ErrIndexClosed         = errors.New("chdhash: index is closed")
	ErrNoPayload           = errors.New("chdhash: index has no payload data")
	ErrFingerprintMismatch = errors.New("chdhash: fingerprint mismatch")
)
