package chdhash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	chderrors "github.com/tamirms/chdhash/errors"
)

// TestAllPayloadFingerprintCombos builds an index for every supported
// payload/fingerprint size pair and checks slots, payloads, and integrity.
func TestAllPayloadFingerprintCombos(t *testing.T) {
	rng := newTestRNG(t)
	keys := generateRandomKeys(rng, 1500)

	for payloadSize := 0; payloadSize <= maxPayloadSize; payloadSize++ {
		for fpSize := 0; fpSize <= maxFingerprintSize; fpSize++ {
			t.Run(fmt.Sprintf("payload%d_fp%d", payloadSize, fpSize), func(t *testing.T) {
				var payloads []uint64
				if payloadSize > 0 {
					payloads = randomPayloads(rng, len(keys), payloadSize)
				}
				idx := buildAndOpen(t, keys, payloads,
					WithPayload(payloadSize), WithFingerprint(fpSize))

				verifyMPHF(t, idx, keys)
				require.NoError(t, idx.Verify())
				if payloadSize > 0 {
					verifyPayloads(t, idx, keys, payloads)
				} else {
					_, err := idx.QueryPayload(keys[0])
					require.ErrorIs(t, err, chderrors.ErrNoPayload)
				}

				stats := idx.Stats()
				assert.Equal(t, uint64(len(keys)), stats.NumKeys)
				assert.Equal(t, payloadSize, stats.PayloadSize)
				assert.Equal(t, fpSize, stats.FingerprintSize)
				wantSize := int64(headerSize + userMetadataLenSize + footerSize +
					len(keys)*(4+payloadSize+fpSize))
				assert.Equal(t, wantSize, stats.IndexSize)
			})
		}
	}
}

func TestIndexFingerprintRejectsNonMembers(t *testing.T) {
	keys := sequentialKeys(4000)
	idx := buildAndOpen(t, keys, nil, WithFingerprint(4))
	verifyNonMemberRejection(t, idx, 5000, 0)
}

// TestIndexWorkersIdentical verifies that the file bytes do not depend on
// the worker count.
func TestIndexWorkersIdentical(t *testing.T) {
	rng := newTestRNG(t)
	keys := generateRandomKeys(rng, 3*minKeysPerWriter+17)
	payloads := randomPayloads(rng, len(keys), 5)
	opts := []BuildOption{WithPayload(5), WithFingerprint(2)}

	ref := buildAndOpen(t, keys, payloads, opts...)
	par := buildAndOpen(t, keys, payloads, append(opts, WithWorkers(4))...)

	assert.Equal(t, ref.data, par.data)
	verifyPayloads(t, par, keys, payloads)
}

func TestIndexSingleKey(t *testing.T) {
	idx := buildAndOpen(t, []string{"only"}, []uint64{42}, WithPayload(1))
	slot, err := idx.Query("only")
	require.NoError(t, err)
	assert.Zero(t, slot)

	p, err := idx.QueryPayload("only")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), p)
	require.NoError(t, idx.Verify())
}

func TestIndexEmpty(t *testing.T) {
	idx := buildAndOpen(t, nil, nil, WithPayload(4), WithUserMetadata([]byte("empty")))
	assert.Zero(t, idx.NumKeys())
	assert.Equal(t, []byte("empty"), idx.UserMetadata())
	require.NoError(t, idx.Verify())

	_, err := idx.Query("anything")
	assert.ErrorIs(t, err, chderrors.ErrNotFound)
	_, err = idx.QueryPayload("anything")
	assert.ErrorIs(t, err, chderrors.ErrNotFound)
	assert.Zero(t, idx.Stats().BitsPerKey)
}

func TestIndexStatsMatchBuild(t *testing.T) {
	keys := sequentialKeys(1000)
	tbl, err := Build(t.Context(), keys, make([]int, len(keys)))
	require.NoError(t, err)

	stats, err := GetStats(buildTestIndex(t, keys, nil))
	require.NoError(t, err)

	want := tbl.Stats()
	assert.Equal(t, want.MaxDisplacement, stats.MaxDisplacement)
	assert.Equal(t, uint32(want.NumBuckets), stats.NumBuckets)
	assert.Equal(t, uint32(want.SingletonBuckets), stats.SingletonBuckets)
	assert.InDelta(t, float64(stats.IndexSize*8)/1000, stats.BitsPerKey, 1e-9)
}

func TestUserMetadataRoundtrip(t *testing.T) {
	meta := []byte("dataset=v3;source=unit-test")
	keys := sequentialKeys(100)

	opt := WithUserMetadata(meta)
	meta[0] = 'X'
	idx := buildAndOpen(t, keys, nil, opt)

	assert.Equal(t, []byte("dataset=v3;source=unit-test"), idx.UserMetadata())
	verifyMPHF(t, idx, keys)
	require.NoError(t, idx.Verify())
}
