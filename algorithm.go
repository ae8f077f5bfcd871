package chdhash

import (
	"context"
	"errors"
	"time"

	chderrors "github.com/tamirms/chdhash/errors"
	"github.com/tamirms/chdhash/internal/chd"
)

// BuildStats describes a finished construction.
type BuildStats struct {
	NumKeys          int
	NumBuckets       int    // non-empty buckets
	MultiKeyBuckets  int    // buckets resolved by displacement search
	SingletonBuckets int    // buckets placed directly into free slots
	MaxBucketSize    int    // largest bucket
	MaxDisplacement  uint32 // largest displacement value stored
	TotalTrials      uint64 // displacement values tried across all buckets
	Attempts         int    // construction attempts, including retries
}

func newBuildStats(s chd.Stats, attempts int) BuildStats {
	return BuildStats{
		NumKeys:          s.NumKeys,
		NumBuckets:       s.NumBuckets,
		MultiKeyBuckets:  s.MultiKeyBuckets,
		SingletonBuckets: s.SingletonBuckets,
		MaxBucketSize:    s.MaxBucketSize,
		MaxDisplacement:  s.MaxDisplacement,
		TotalTrials:      s.TotalTrials,
		Attempts:         attempts,
	}
}

// solve runs the displacement construction over keys, retrying on
// ErrDisplacementExhausted with the search advanced past every seed the
// previous attempt could have tried.
func (c *buildConfig) solve(ctx context.Context, keys []string) (*chd.Result, BuildStats, error) {
	start := time.Now()
	for attempt := 0; ; attempt++ {
		first := uint64(1) + uint64(attempt)*uint64(c.maxTrials)
		res, err := chd.Solve(ctx, keys, chd.Config{
			MaxTrials: c.maxTrials,
			FirstSeed: uint32(first),
			Workers:   c.workers,
		})
		if err == nil {
			stats := newBuildStats(res.Stats, attempt+1)
			c.logger.Log(c.logLvl, "[chd] build done",
				"keys", stats.NumKeys,
				"buckets", stats.NumBuckets,
				"singletons", stats.SingletonBuckets,
				"maxBucket", stats.MaxBucketSize,
				"maxDisplacement", stats.MaxDisplacement,
				"trials", stats.TotalTrials,
				"attempts", stats.Attempts,
				"took", time.Since(start))
			return res, stats, nil
		}
		if !errors.Is(err, chderrors.ErrDisplacementExhausted) || attempt >= c.retries {
			return nil, BuildStats{}, err
		}
		if chd.SearchIsExhaustive(uint32(len(keys)), c.maxTrials) {
			c.logger.Log(c.logLvl, "[chd] displacement exhausted, every seed tried",
				"keys", len(keys), "err", err)
			return nil, BuildStats{}, err
		}
		c.logger.Log(c.logLvl, "[chd] displacement exhausted, retrying",
			"attempt", attempt+1, "of", c.retries+1, "err", err)
	}
}
