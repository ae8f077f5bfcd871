// Package chd implements the compress-hash-displace construction for a
// minimal perfect hash over string keys.
//
// Construction runs in three steps over a table of N slots:
//
//  1. Bucket assignment: every key goes to bucket fnv.Index(0, key, N).
//     The bucket index is the key's anchor.
//  2. Displacement: buckets with two or more keys, largest first, search for
//     the smallest d >= FirstSeed such that fnv.Index(d, key, N) lands every
//     key of the bucket in a distinct free slot. d is stored at the anchor.
//  3. Singletons: each one-key bucket takes the next free slot directly and
//     stores -(slot+1) at its anchor.
//
// Lookup reads the anchor entry once: positive entries re-hash with that
// seed, negative entries name the slot.
package chd

import (
	"fmt"
	"math"

	chderrors "github.com/tamirms/chdhash/errors"
)

const (
	// DefaultMaxTrials is the default per-bucket displacement ceiling.
	// Buckets resolved while the table is nearly full need the most trials;
	// in practice d stays below a few thousand for well-behaved key sets.
	DefaultMaxTrials = 1 << 20

	// MaxKeys is the largest supported key count. Singleton markers are
	// stored as -(slot+1) in an int32, so slots must fit in [0, 2^31-1).
	MaxKeys = math.MaxInt32

	// contextCheckInterval is how often (in keys hashed or buckets resolved)
	// construction polls the context for cancellation.
	contextCheckInterval = 4096

	// minKeysPerWorker keeps the parallel hashing pass from splitting tiny
	// inputs into chunks that cost more to schedule than to hash.
	minKeysPerWorker = 1 << 14
)

// Config controls a single construction attempt.
type Config struct {
	// MaxTrials bounds the number of displacement values tried per bucket.
	MaxTrials uint32

	// FirstSeed is the first displacement value tried for every bucket.
	// Zero means 1. Advancing it moves a retry into a fresh region of the
	// hash family without changing the primary hash.
	FirstSeed uint32

	// Workers is the number of goroutines used for the primary hashing pass.
	// Values <= 1 hash on the calling goroutine.
	Workers int
}

// firstSeed returns the effective first displacement.
func (c Config) firstSeed() uint32 {
	if c.FirstSeed == 0 {
		return 1
	}
	return c.FirstSeed
}

// validate checks that every displacement the search can produce fits in
// the positive int32 range.
func (c Config) validate() error {
	if c.MaxTrials == 0 {
		return chderrors.ErrInvalidMaxTrials
	}
	last := uint64(c.firstSeed()) + uint64(c.MaxTrials) - 1
	if last > math.MaxInt32 {
		return fmt.Errorf("%w: seeds %d..%d exceed int32 range",
			chderrors.ErrInvalidMaxTrials, c.firstSeed(), last)
	}
	return nil
}
