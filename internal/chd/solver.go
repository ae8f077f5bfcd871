package chd

import (
	"context"
	"fmt"
	"unicode/utf8"

	chderrors "github.com/tamirms/chdhash/errors"
	"github.com/tamirms/chdhash/internal/bits"
	"github.com/tamirms/chdhash/internal/fnv"
)

// Stats describes a finished construction.
type Stats struct {
	NumKeys          int
	NumBuckets       int    // non-empty buckets
	MultiKeyBuckets  int    // buckets resolved by displacement search
	SingletonBuckets int    // buckets placed directly into free slots
	MaxBucketSize    int    // largest bucket
	MaxDisplacement  uint32 // largest committed d (0 if no multi-key buckets)
	TotalTrials      uint64 // displacement values tried across all buckets
}

// Result is the output of Solve.
type Result struct {
	// Displacements has one entry per anchor: d > 0 is a displacement seed,
	// d < 0 encodes slot -d-1, and 0 marks an empty bucket.
	Displacements []int32

	// Slots[i] is the final slot of keys[i]. Slots is a permutation of [0, N).
	Slots []uint32

	Stats Stats
}

// solver holds the mutable construction state for a single attempt.
type solver struct {
	keys     []string
	n        uint32
	cfg      Config
	set      *bucketSet
	occupied *bits.Vector

	// Per-trial claim tracking: claimedGen[slot] == gen means the slot is
	// claimed by an earlier key of the current trial. gen increments per
	// trial so nothing needs clearing between trials.
	claimedGen []uint32
	gen        uint32
	slotBuf    []uint32

	result *Result
}

// Solve builds the displacement table for keys. Keys must be distinct.
//
// Returns ErrDuplicateKey if a key appears twice, ErrDisplacementExhausted
// if a bucket cannot be placed within cfg.MaxTrials, or the context error
// if ctx is cancelled.
func Solve(ctx context.Context, keys []string, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(keys) > MaxKeys {
		return nil, chderrors.ErrTooManyKeys
	}

	n := uint32(len(keys))
	res := &Result{
		Displacements: make([]int32, n),
		Slots:         make([]uint32, n),
		Stats:         Stats{NumKeys: len(keys)},
	}
	if n == 0 {
		return res, nil
	}

	anchors, err := computeAnchors(ctx, keys, n, cfg.Workers)
	if err != nil {
		return nil, err
	}

	s := &solver{
		keys:     keys,
		n:        n,
		cfg:      cfg,
		set:      groupBuckets(anchors, n),
		occupied: bits.NewVector(n),
		result:   res,
	}
	res.Stats.NumBuckets = len(s.set.buckets)
	res.Stats.MaxBucketSize = int(s.set.buckets[0].size)

	singles, err := s.displaceAll(ctx)
	if err != nil {
		return nil, err
	}
	s.placeSingletons(singles)
	return res, nil
}

// displaceAll resolves every multi-key bucket in sorted order and returns
// the remaining singleton buckets.
func (s *solver) displaceAll(ctx context.Context) ([]bucket, error) {
	for i, b := range s.set.buckets {
		if b.size < 2 {
			return s.set.buckets[i:], nil
		}
		if i%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := s.displace(b); err != nil {
			return nil, err
		}
		s.result.Stats.MultiKeyBuckets++
	}
	return nil, nil
}

// displace searches for a seed that places every key of b into a distinct
// free slot, then commits the bucket.
func (s *solver) displace(b bucket) error {
	members := s.set.keys(b)
	if err := s.checkDuplicates(members); err != nil {
		return err
	}

	if s.claimedGen == nil {
		s.claimedGen = make([]uint32, s.n)
	}
	if cap(s.slotBuf) < len(members) {
		s.slotBuf = make([]uint32, len(members))
	}
	slots := s.slotBuf[:len(members)]

	first := s.cfg.firstSeed()
	limit := s.trialLimit()
	for trial := uint32(0); trial < limit; trial++ {
		d := first + trial
		s.result.Stats.TotalTrials++
		if s.tryPlace(d, members, slots) {
			s.commit(b, d, members, slots)
			return nil
		}
	}
	return fmt.Errorf("%w: anchor=%d size=%d trials=%d",
		chderrors.ErrDisplacementExhausted, b.anchor, b.size, limit)
}

// trialLimit returns the number of distinct seeds worth trying per bucket.
// When N is a power of two, Hash(d, key) mod N depends only on d mod N, so
// seeds beyond the first N repeat earlier trials.
func (s *solver) trialLimit() uint32 {
	if s.n&(s.n-1) == 0 && s.n < s.cfg.MaxTrials {
		return s.n
	}
	return s.cfg.MaxTrials
}

// SearchIsExhaustive reports whether maxTrials consecutive seeds already
// cover every distinct placement for a table of n slots. A failed search
// then fails again from any other starting seed.
func SearchIsExhaustive(n, maxTrials uint32) bool {
	return n > 0 && n&(n-1) == 0 && n <= maxTrials
}

// tryPlace computes the slot of each member under seed d, writing them to
// slots. Reports false on the first slot that is occupied globally or
// already claimed by an earlier member in this trial.
func (s *solver) tryPlace(d uint32, members []uint32, slots []uint32) bool {
	s.gen++
	if s.gen == 0 {
		// Generation wrapped: stale stamps could alias the new generation.
		clear(s.claimedGen)
		s.gen = 1
	}
	for j, ki := range members {
		slot := fnv.Index(d, s.keys[ki], s.n)
		if s.occupied.IsSet(slot) || s.claimedGen[slot] == s.gen {
			return false
		}
		s.claimedGen[slot] = s.gen
		slots[j] = slot
	}
	return true
}

// commit records d at the bucket anchor and takes ownership of its slots.
func (s *solver) commit(b bucket, d uint32, members []uint32, slots []uint32) {
	s.result.Displacements[b.anchor] = int32(d)
	for j, ki := range members {
		s.occupied.Set(slots[j])
		s.result.Slots[ki] = slots[j]
	}
	if d > s.result.Stats.MaxDisplacement {
		s.result.Stats.MaxDisplacement = d
	}
}

// placeSingletons assigns each one-key bucket the next free slot in
// ascending order and records -(slot+1) at its anchor.
func (s *solver) placeSingletons(singles []bucket) {
	free := s.occupied.AppendClear(make([]uint32, 0, len(singles)))
	if len(free) != len(singles) {
		panic(fmt.Sprintf("chd: %d free slots for %d singleton buckets", len(free), len(singles)))
	}
	for i, b := range singles {
		slot := free[i]
		s.occupied.Set(slot)
		s.result.Displacements[b.anchor] = -int32(slot) - 1
		s.result.Slots[s.set.keys(b)[0]] = slot
	}
	s.result.Stats.SingletonBuckets = len(singles)
}

// checkDuplicates rejects a bucket holding the same key twice: duplicates
// hash identically under every seed, so the search could never succeed.
// Keys are compared as code point sequences, the same view the hash takes.
func (s *solver) checkDuplicates(members []uint32) error {
	for i := 1; i < len(members); i++ {
		ki := s.keys[members[i]]
		for _, mj := range members[:i] {
			if sameCodePoints(s.keys[mj], ki) {
				return fmt.Errorf("%w: %q", chderrors.ErrDuplicateKey, ki)
			}
		}
	}
	return nil
}

// sameCodePoints reports whether a and b decode to the same code points.
// Distinct byte strings can collide when both contain invalid UTF-8.
func sameCodePoints(a, b string) bool {
	if a == b {
		return true
	}
	for len(a) > 0 && len(b) > 0 {
		ra, na := utf8.DecodeRuneInString(a)
		rb, nb := utf8.DecodeRuneInString(b)
		if ra != rb {
			return false
		}
		a, b = a[na:], b[nb:]
	}
	return len(a) == 0 && len(b) == 0
}
