package chdhash

import (
	"context"
	"fmt"
	"slices"

	chderrors "github.com/tamirms/chdhash/errors"
	"github.com/tamirms/chdhash/internal/chd"
	"github.com/tamirms/chdhash/internal/encoding"
)

// Table is an in-memory minimal perfect hash table mapping each build key
// to its value in O(1).
//
// Lookups of keys that were not part of the build return an arbitrary value
// unless the table was built with WithFingerprint, in which case they fail
// with ErrFingerprintMismatch except with probability 2^-(8*size).
//
// A Table is immutable after construction and safe for concurrent use.
type Table[V any] struct {
	displacements []int32
	values        []V

	fpSize       int
	fingerprints []byte // len(values) * fpSize, indexed by slot

	stats BuildStats
}

// Build constructs a table mapping keys[i] to values[i].
//
// Keys must be distinct. Returns ErrKeyCountMismatch if the slices differ in
// length, ErrDuplicateKey if a key repeats, and ErrDisplacementExhausted if
// no table was found within the trial budget (see WithMaxTrials and
// WithRetries). WithPayload and WithUserMetadata are ignored.
func Build[V any](ctx context.Context, keys []string, values []V, opts ...BuildOption) (*Table[V], error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("%w: %d keys, %d values",
			chderrors.ErrKeyCountMismatch, len(keys), len(values))
	}
	if len(keys) > chd.MaxKeys {
		return nil, chderrors.ErrTooManyKeys
	}
	cfg, err := newBuildConfig(opts)
	if err != nil {
		return nil, err
	}

	res, stats, err := cfg.solve(ctx, keys)
	if err != nil {
		return nil, err
	}

	t := &Table[V]{
		displacements: res.Displacements,
		values:        make([]V, len(values)),
		fpSize:        cfg.fingerprintSize,
		stats:         stats,
	}
	if t.fpSize > 0 {
		t.fingerprints = make([]byte, len(keys)*t.fpSize)
	}
	for i, slot := range res.Slots {
		t.values[slot] = values[i]
		if t.fpSize > 0 {
			encoding.PutEntry(t.fingerprints, int(slot), t.fpSize, 0, fingerprint(keys[i], t.fpSize), 0)
		}
	}
	return t, nil
}

// BuildMap constructs a table from m. Keys are sorted before construction,
// so the result is the same for every iteration order of m.
func BuildMap[V any](ctx context.Context, m map[string]V, opts ...BuildOption) (*Table[V], error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	values := make([]V, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return Build(ctx, keys, values, opts...)
}

// NewTable reconstructs a table from the arrays returned by Displacements
// and Values, e.g. after loading them from storage. The slices are used
// directly and must not be modified afterwards.
//
// Returns ErrKeyCountMismatch if the lengths differ and ErrCorruptedIndex
// if a singleton marker is out of range or repeated. The restored table
// has no fingerprints and zero BuildStats apart from NumKeys.
func NewTable[V any](displacements []int32, values []V) (*Table[V], error) {
	if len(displacements) != len(values) {
		return nil, fmt.Errorf("%w: %d displacements, %d values",
			chderrors.ErrKeyCountMismatch, len(displacements), len(values))
	}
	if err := chd.Validate(displacements); err != nil {
		return nil, err
	}
	return &Table[V]{
		displacements: displacements,
		values:        values,
		stats:         BuildStats{NumKeys: len(values)},
	}, nil
}

// Slot returns the slot in [0, Len()) assigned to key.
func (t *Table[V]) Slot(key string) (uint32, error) {
	slot, err := chd.Slot(t.displacements, key)
	if err != nil {
		return 0, err
	}
	if t.fpSize > 0 {
		stored := encoding.ReadFP(t.fingerprints[int(slot)*t.fpSize:], t.fpSize)
		if stored != fingerprint(key, t.fpSize) {
			return 0, chderrors.ErrFingerprintMismatch
		}
	}
	return slot, nil
}

// Get returns the value stored for key.
func (t *Table[V]) Get(key string) (V, error) {
	slot, err := t.Slot(key)
	if err != nil {
		var zero V
		return zero, err
	}
	return t.values[slot], nil
}

// Lookup is Get reporting failure as a bool.
func (t *Table[V]) Lookup(key string) (V, bool) {
	v, err := t.Get(key)
	return v, err == nil
}

// Len returns the number of keys.
func (t *Table[V]) Len() int {
	return len(t.values)
}

// Displacements returns the displacement array, one entry per anchor.
// The returned slice must not be modified.
func (t *Table[V]) Displacements() []int32 {
	return t.displacements
}

// Values returns the values indexed by slot.
// The returned slice must not be modified.
func (t *Table[V]) Values() []V {
	return t.values
}

// Stats returns construction statistics.
func (t *Table[V]) Stats() BuildStats {
	return t.stats
}
