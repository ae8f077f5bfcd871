package chd

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	chderrors "github.com/tamirms/chdhash/errors"
	hashfamily "github.com/tamirms/chdhash/internal/fnv"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

func defaultConfig() Config {
	return Config{MaxTrials: DefaultMaxTrials}
}

// sequentialKeys returns "key-0" .. "key-(n-1)".
func sequentialKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}
	return keys
}

// randomKeys returns n distinct keys mixing ASCII and BMP code points.
func randomKeys(rng *rand.Rand, n int) []string {
	seen := make(map[string]struct{}, n)
	keys := make([]string, 0, n)
	for len(keys) < n {
		runes := make([]rune, 1+rng.IntN(16))
		for i := range runes {
			if rng.IntN(10) == 0 {
				runes[i] = rune(0xa0 + rng.IntN(0x2f00))
			} else {
				runes[i] = rune(0x20 + rng.IntN(0x5f))
			}
		}
		k := string(runes)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// requireBijection checks that the decoded slot of every key matches the
// solver's assignment and that the slots cover [0, N) exactly once.
func requireBijection(t *testing.T, keys []string, res *Result) {
	t.Helper()
	n := len(keys)
	require.Len(t, res.Displacements, n)
	require.Len(t, res.Slots, n)

	seen := make([]bool, n)
	for i, k := range keys {
		slot, err := Slot(res.Displacements, k)
		require.NoError(t, err, "key %q", k)
		require.Equal(t, res.Slots[i], slot, "key %q", k)
		require.Less(t, int(slot), n)
		require.False(t, seen[slot], "slot %d assigned twice", slot)
		seen[slot] = true
	}
	require.NoError(t, Validate(res.Displacements))
}

func TestSolveThreeKeys(t *testing.T) {
	keys := []string{"a", "b", "c"}
	res, err := Solve(context.Background(), keys, defaultConfig())
	require.NoError(t, err)
	requireBijection(t, keys, res)

	// "a" and "b" share anchor 2 and need displacement; "c" is a singleton.
	require.Equal(t, []int32{0, -3, 1}, res.Displacements)
	require.Equal(t, []uint32{1, 0, 2}, res.Slots)
	require.Equal(t, 2, res.Stats.NumBuckets)
	require.Equal(t, 1, res.Stats.MultiKeyBuckets)
	require.Equal(t, 1, res.Stats.SingletonBuckets)
	require.Equal(t, 2, res.Stats.MaxBucketSize)
	require.Equal(t, uint32(1), res.Stats.MaxDisplacement)
}

func TestSolveSingleKey(t *testing.T) {
	res, err := Solve(context.Background(), []string{"only"}, defaultConfig())
	require.NoError(t, err)
	require.Equal(t, []int32{-1}, res.Displacements)
	require.Equal(t, []uint32{0}, res.Slots)
	require.Equal(t, 1, res.Stats.SingletonBuckets)
	require.Zero(t, res.Stats.MultiKeyBuckets)
}

func TestSolveEmpty(t *testing.T) {
	res, err := Solve(context.Background(), nil, defaultConfig())
	require.NoError(t, err)
	require.Empty(t, res.Displacements)
	require.Empty(t, res.Slots)

	_, err = Slot(res.Displacements, "anything")
	require.ErrorIs(t, err, chderrors.ErrNotFound)
}

func TestSolveSequentialKeys(t *testing.T) {
	for _, n := range []int{10, 100, 1000, 3000, 12345} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			keys := sequentialKeys(n)
			res, err := Solve(context.Background(), keys, defaultConfig())
			require.NoError(t, err)
			requireBijection(t, keys, res)
			require.Equal(t, n, res.Stats.NumKeys)
		})
	}
}

func TestSolveRandomKeys(t *testing.T) {
	rng := newTestRNG(t)
	for _, n := range []int{3, 7, 99, 500, 10001} {
		keys := randomKeys(rng, n)
		res, err := Solve(context.Background(), keys, defaultConfig())
		require.NoError(t, err, "n=%d", n)
		requireBijection(t, keys, res)
	}
}

// TestSolveDisplacesCollidingBuckets uses a key set large enough to force
// multi-key buckets, then checks each bucket's committed seed separates its
// members and lands them outside every other bucket's slots.
func TestSolveDisplacesCollidingBuckets(t *testing.T) {
	keys := sequentialKeys(1000)
	res, err := Solve(context.Background(), keys, defaultConfig())
	require.NoError(t, err)
	require.Positive(t, res.Stats.MultiKeyBuckets)
	require.GreaterOrEqual(t, res.Stats.MaxBucketSize, 2)

	n := uint32(len(keys))
	byAnchor := make(map[uint32][]string)
	for _, k := range keys {
		a := hashfamily.Index(0, k, n)
		byAnchor[a] = append(byAnchor[a], k)
	}

	owner := make(map[uint32]uint32) // slot -> anchor
	for a, members := range byAnchor {
		d := res.Displacements[a]
		if len(members) == 1 {
			require.Negative(t, d, "singleton anchor %d", a)
			continue
		}
		require.Positive(t, d, "anchor %d with %d keys", a, len(members))
		for _, k := range members {
			slot := hashfamily.Index(uint32(d), k, n)
			prev, taken := owner[slot]
			require.False(t, taken, "slot %d claimed by anchors %d and %d", slot, prev, a)
			owner[slot] = a
		}
	}
}

// TestSolveDeterministic verifies identical tables for identical input
// order, independent of the worker count.
func TestSolveDeterministic(t *testing.T) {
	keys := sequentialKeys(40000)
	first, err := Solve(context.Background(), keys, defaultConfig())
	require.NoError(t, err)

	for _, workers := range []int{1, 2, 4} {
		cfg := defaultConfig()
		cfg.Workers = workers
		res, err := Solve(context.Background(), keys, cfg)
		require.NoError(t, err)
		require.Equal(t, first.Displacements, res.Displacements, "workers=%d", workers)
		require.Equal(t, first.Slots, res.Slots, "workers=%d", workers)
		require.Equal(t, first.Stats, res.Stats)
	}
}

func TestSolveDuplicateKey(t *testing.T) {
	_, err := Solve(context.Background(), []string{"x", "y", "x"}, defaultConfig())
	require.ErrorIs(t, err, chderrors.ErrDuplicateKey)
}

// Distinct byte strings with the same code point view are duplicates.
func TestSolveInvalidUTF8Duplicate(t *testing.T) {
	_, err := Solve(context.Background(), []string{"\xff", "\xfe"}, defaultConfig())
	require.ErrorIs(t, err, chderrors.ErrDuplicateKey)
}

// "a" and "c" share a bucket for N=2 and differ only in bit 1, which never
// reaches the low bit of any family member, so no seed separates them.
func TestSolveDisplacementExhausted(t *testing.T) {
	cfg := Config{MaxTrials: 100}
	_, err := Solve(context.Background(), []string{"a", "c"}, cfg)
	require.ErrorIs(t, err, chderrors.ErrDisplacementExhausted)
}

func TestSolveTrialLimitPowerOfTwo(t *testing.T) {
	s := &solver{n: 1024, cfg: Config{MaxTrials: DefaultMaxTrials}}
	require.Equal(t, uint32(1024), s.trialLimit())

	s = &solver{n: 1000, cfg: Config{MaxTrials: DefaultMaxTrials}}
	require.Equal(t, uint32(DefaultMaxTrials), s.trialLimit())

	s = &solver{n: 1024, cfg: Config{MaxTrials: 10}}
	require.Equal(t, uint32(10), s.trialLimit())
}

func TestSolveFirstSeed(t *testing.T) {
	keys := sequentialKeys(500)
	cfg := defaultConfig()
	cfg.FirstSeed = 1000
	res, err := Solve(context.Background(), keys, cfg)
	require.NoError(t, err)
	requireBijection(t, keys, res)
	for _, d := range res.Displacements {
		if d > 0 {
			require.GreaterOrEqual(t, d, int32(1000))
		}
	}
}

func TestSolveInvalidConfig(t *testing.T) {
	_, err := Solve(context.Background(), []string{"a"}, Config{})
	require.ErrorIs(t, err, chderrors.ErrInvalidMaxTrials)

	_, err = Solve(context.Background(), []string{"a"}, Config{MaxTrials: 10, FirstSeed: 1<<31 - 5})
	require.ErrorIs(t, err, chderrors.ErrInvalidMaxTrials)
	require.NotErrorIs(t, err, chderrors.ErrDisplacementExhausted)
}

func TestSearchIsExhaustive(t *testing.T) {
	for _, tc := range []struct {
		n, maxTrials uint32
		want         bool
	}{
		{0, 10, false},
		{1, 10, true},
		{2, 50, true},
		{4096, DefaultMaxTrials, true},
		{1024, 1024, true},
		{1024, 1023, false},
		{1000, DefaultMaxTrials, false},
		{3, 100, false},
	} {
		require.Equal(t, tc.want, SearchIsExhaustive(tc.n, tc.maxTrials), "n=%d maxTrials=%d", tc.n, tc.maxTrials)
	}
}

func TestSolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Solve(ctx, sequentialKeys(100), defaultConfig())
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func BenchmarkSolve(b *testing.B) {
	keys := sequentialKeys(100000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Solve(context.Background(), keys, defaultConfig()); err != nil {
			b.Fatal(err)
		}
	}
}
