package chdhash

import (
	"fmt"
	"math"

	"github.com/ledgerwatch/log/v3"

	chderrors "github.com/tamirms/chdhash/errors"
	"github.com/tamirms/chdhash/internal/chd"
)

const (
	maxPayloadSize     = 8
	maxFingerprintSize = 4
)

// BuildOption is a functional option for configuring builds.
type BuildOption func(*buildConfig)

type buildConfig struct {
	workers         int
	payloadSize     int
	fingerprintSize int // in bytes
	maxTrials       uint32
	retries         int
	userMetadata    []byte

	logger log.Logger
	logLvl log.Lvl

	totalKeys uint64 // Pre-declared key count for file builds
}

func defaultBuildConfig() *buildConfig {
	return &buildConfig{
		workers:   0, // Default to single-threaded; use WithWorkers(n) to parallelize
		maxTrials: chd.DefaultMaxTrials,
		logLvl:    log.LvlDebug,
	}
}

// newBuildConfig applies opts over the defaults and validates the result.
func newBuildConfig(opts []BuildOption) (*buildConfig, error) {
	cfg := defaultBuildConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = discardLogger()
	}
	if cfg.payloadSize < 0 || cfg.payloadSize > maxPayloadSize {
		return nil, chderrors.ErrPayloadTooLarge
	}
	if cfg.fingerprintSize < 0 || cfg.fingerprintSize > maxFingerprintSize {
		return nil, chderrors.ErrFingerprintTooLarge
	}
	if cfg.retries < 0 {
		cfg.retries = 0
	}
	if cfg.maxTrials == 0 {
		return nil, chderrors.ErrInvalidMaxTrials
	}
	// The last attempt searches seeds up to (retries+1)*maxTrials, and every
	// seed is stored as a positive int32.
	if last := uint64(cfg.retries+1) * uint64(cfg.maxTrials); last > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d attempts of %d trials reach seed %d",
			chderrors.ErrInvalidMaxTrials, cfg.retries+1, cfg.maxTrials, last)
	}
	return cfg, nil
}

func discardLogger() log.Logger {
	l := log.New()
	l.SetHandler(log.DiscardHandler())
	return l
}

// entrySize returns bytes stored per slot (fingerprint + payload).
func (c *buildConfig) entrySize() int {
	return c.payloadSize + c.fingerprintSize
}

// WithWorkers sets the number of goroutines used for the primary hashing
// pass and for writing index entries. The table produced does not depend
// on the worker count.
func WithWorkers(n int) BuildOption {
	return func(c *buildConfig) {
		c.workers = n
	}
}

// WithPayload configures payload storage for file indexes (0-8 bytes per key).
func WithPayload(size int) BuildOption {
	return func(c *buildConfig) {
		c.payloadSize = size
	}
}

// WithFingerprint configures fingerprint verification (size in bytes, 0-4).
// With fingerprints, lookups of keys outside the build set fail with
// ErrFingerprintMismatch except with probability 2^-(8*size).
func WithFingerprint(sizeBytes int) BuildOption {
	return func(c *buildConfig) {
		c.fingerprintSize = sizeBytes
	}
}

// WithMaxTrials bounds the displacement values tried per bucket before the
// build fails with ErrDisplacementExhausted.
func WithMaxTrials(n uint32) BuildOption {
	return func(c *buildConfig) {
		c.maxTrials = n
	}
}

// WithRetries rebuilds up to n more times after ErrDisplacementExhausted.
// Each retry searches a fresh, non-overlapping range of displacement
// values. The bucket assignment is unchanged, so retries cannot help when
// two keys are inseparable under every seed (see ErrDisplacementExhausted).
func WithRetries(n int) BuildOption {
	return func(c *buildConfig) {
		c.retries = n
	}
}

// WithUserMetadata sets the variable-length user metadata stored in file
// indexes. The metadata is copied, so the caller can reuse the slice after
// this call returns.
func WithUserMetadata(data []byte) BuildOption {
	data = append([]byte(nil), data...)
	return func(c *buildConfig) {
		c.userMetadata = data
	}
}

// WithLogger sets the logger used for build progress and statistics.
// Default discards everything.
func WithLogger(logger log.Logger) BuildOption {
	return func(c *buildConfig) {
		c.logger = logger
	}
}

// WithLogLevel sets the level build messages are logged at. Default LvlDebug.
func WithLogLevel(lvl log.Lvl) BuildOption {
	return func(c *buildConfig) {
		c.logLvl = lvl
	}
}
