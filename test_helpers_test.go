package chdhash

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/require"
	chderrors "github.com/tamirms/chdhash/errors"
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

// generateRandomKeys returns n distinct valid UTF-8 keys of 1-24 code
// points, mostly ASCII with some multi-byte characters.
// Use a key count that is not a power of two (see doc.go Limitations).
func generateRandomKeys(rng *rand.Rand, n int) []string {
	seen := make(map[string]struct{}, n)
	keys := make([]string, 0, n)
	for len(keys) < n {
		runes := make([]rune, 1+rng.IntN(24))
		for i := range runes {
			if rng.IntN(8) == 0 {
				runes[i] = rune(0xc0 + rng.IntN(0x2000))
			} else {
				runes[i] = rune('!' + rng.IntN(94))
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

// sequentialKeys returns "key-0" .. "key-(n-1)".
func sequentialKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}
	return keys
}

// randomPayloads returns n payloads that fit in payloadSize bytes.
func randomPayloads(rng *rand.Rand, n, payloadSize int) []uint64 {
	payloads := make([]uint64, n)
	for i := range payloads {
		p := rng.Uint64()
		if payloadSize < 8 {
			p &= uint64(1)<<(payloadSize*8) - 1
		}
		payloads[i] = p
	}
	return payloads
}

// buildIndexFile builds an index at a temp path. payloads may be nil.
func buildIndexFile(ctx context.Context, output string, keys []string, payloads []uint64, opts ...BuildOption) error {
	builder, err := NewBuilder(ctx, output, uint64(len(keys)), opts...)
	if err != nil {
		return err
	}
	for i, k := range keys {
		var p uint64
		if payloads != nil {
			p = payloads[i]
		}
		if err := builder.AddKey(k, p); err != nil {
			return errors.Join(err, builder.Close())
		}
	}
	return builder.Finish()
}

// buildTestIndex builds an index over keys and returns its path.
func buildTestIndex(t *testing.T, keys []string, payloads []uint64, opts ...BuildOption) string {
	t.Helper()
	idxPath := filepath.Join(t.TempDir(), "test.idx")
	require.NoError(t, buildIndexFile(t.Context(), idxPath, keys, payloads, opts...))
	return idxPath
}

// buildAndOpen builds an index over keys and opens it. The index is closed
// when the test ends.
func buildAndOpen(t *testing.T, keys []string, payloads []uint64, opts ...BuildOption) *Index {
	t.Helper()
	idx, err := Open(buildTestIndex(t, keys, payloads, opts...))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

// slotSource is the query surface shared by Index and Table.
type slotSource interface {
	Query(key string) (uint64, error)
}

// tableSlots adapts a Table to slotSource.
type tableSlots[V any] struct{ t *Table[V] }

func (s tableSlots[V]) Query(key string) (uint64, error) {
	slot, err := s.t.Slot(key)
	return uint64(slot), err
}

// verifyMPHF checks that keys map to distinct slots covering [0, len(keys)).
func verifyMPHF(t *testing.T, idx slotSource, keys []string) {
	t.Helper()
	seen := make([]bool, len(keys))
	for _, k := range keys {
		slot, err := idx.Query(k)
		require.NoError(t, err, "key %q", k)
		require.Less(t, slot, uint64(len(keys)), "key %q", k)
		require.False(t, seen[slot], "slot %d assigned twice (key %q)", slot, k)
		seen[slot] = true
	}
}

// verifyPayloads checks that every key returns its payload.
func verifyPayloads(t *testing.T, idx *Index, keys []string, payloads []uint64) {
	t.Helper()
	for i, k := range keys {
		got, err := idx.QueryPayload(k)
		require.NoError(t, err, "key %q", k)
		require.Equal(t, payloads[i], got, "key %q", k)
	}
}

// verifyNonMemberRejection probes keys that were never added and requires
// that at most maxAccepted of them resolve to a slot.
func verifyNonMemberRejection(t *testing.T, idx slotSource, numProbes, maxAccepted int) {
	t.Helper()
	var accepted int
	for i := range numProbes {
		_, err := idx.Query(fmt.Sprintf("non-member/%d", i))
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, chderrors.ErrFingerprintMismatch), errors.Is(err, chderrors.ErrNotFound):
		default:
			require.NoError(t, err)
		}
	}
	require.LessOrEqual(t, accepted, maxAccepted)
}

// recordingHandler collects log records.
type recordingHandler struct {
	mu      sync.Mutex
	records []*log.Record
}

func (h *recordingHandler) Log(r *log.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := make([]string, len(h.records))
	for i, r := range h.records {
		msgs[i] = r.Msg
	}
	return msgs
}

// newRecordingLogger returns a logger writing to a recordingHandler.
func newRecordingLogger() (log.Logger, *recordingHandler) {
	h := &recordingHandler{}
	l := log.New()
	l.SetHandler(h)
	return l, h
}
