package chd

import (
	"context"
	"slices"

	"github.com/tamirms/chdhash/internal/fnv"
	"golang.org/x/sync/errgroup"
)

// bucket is a group of keys sharing an anchor. Members are indices into
// the key slice, laid out contiguously in bucketSet.members.
type bucket struct {
	anchor uint32
	start  uint32
	size   uint32
}

// bucketSet holds every non-empty bucket in compressed form: members of
// bucket b are members[b.start : b.start+b.size], in key order.
type bucketSet struct {
	buckets []bucket
	members []uint32
}

// keys returns the member key indices of b.
func (s *bucketSet) keys(b bucket) []uint32 {
	return s.members[b.start : b.start+b.size]
}

// computeAnchors computes the primary hash residue of every key.
// With workers > 1 the keys are split into contiguous chunks hashed in
// parallel; the result does not depend on the worker count.
func computeAnchors(ctx context.Context, keys []string, n uint32, workers int) ([]uint32, error) {
	anchors := make([]uint32, len(keys))

	if maxWorkers := len(keys) / minKeysPerWorker; workers > maxWorkers {
		workers = maxWorkers
	}
	if workers <= 1 {
		return anchors, hashRange(ctx, keys, anchors, n)
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(keys) + workers - 1) / workers
	for lo := 0; lo < len(keys); lo += chunk {
		hi := min(lo+chunk, len(keys))
		g.Go(func() error {
			return hashRange(gctx, keys[lo:hi], anchors[lo:hi], n)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return anchors, nil
}

// hashRange writes the anchor of keys[i] to dst[i].
func hashRange(ctx context.Context, keys []string, dst []uint32, n uint32) error {
	for i, k := range keys {
		if i%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		dst[i] = fnv.Index(0, k, n)
	}
	return nil
}

// groupBuckets partitions key indices by anchor using a counting sort and
// orders the non-empty buckets by descending size. The sort is stable, so
// equal-size buckets keep ascending anchor order and the output is fully
// determined by the key order.
func groupBuckets(anchors []uint32, n uint32) *bucketSet {
	counts := make([]uint32, n)
	for _, a := range anchors {
		counts[a]++
	}

	var nonEmpty int
	for _, c := range counts {
		if c > 0 {
			nonEmpty++
		}
	}

	s := &bucketSet{
		buckets: make([]bucket, 0, nonEmpty),
		members: make([]uint32, len(anchors)),
	}

	// counts[a] becomes the write cursor for anchor a.
	var start uint32
	for a, c := range counts {
		if c == 0 {
			continue
		}
		s.buckets = append(s.buckets, bucket{anchor: uint32(a), start: start, size: c})
		counts[a] = start
		start += c
	}
	for i, a := range anchors {
		s.members[counts[a]] = uint32(i)
		counts[a]++
	}

	slices.SortStableFunc(s.buckets, func(x, y bucket) int {
		return int(y.size) - int(x.size)
	})
	return s
}
