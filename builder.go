package chdhash

import (
	"context"
	"errors"
	"fmt"
	"os"

	chderrors "github.com/tamirms/chdhash/errors"
	"github.com/tamirms/chdhash/internal/chd"
	"github.com/tamirms/chdhash/internal/encoding"
	"golang.org/x/sync/errgroup"
)

const (
	// contextCheckInterval is how often to check for context cancellation
	// during AddKey and entry writes.
	contextCheckInterval = 10000

	// minKeysPerWriter keeps entry writing on one goroutine for small indexes.
	minKeysPerWriter = 1 << 16
)

// Builder provides an AddKey-style API for building index files.
//
// Keys may arrive in any order. They are buffered in memory until Finish,
// which runs the construction and writes the file.
//
// Usage:
//
//	builder, err := chdhash.NewBuilder(ctx, "index.idx", totalKeys, chdhash.WithPayload(4))
//	if err != nil { return err }
//	defer builder.Close() // Clean up on error
//
//	for key, payload := range data {
//	    if err := builder.AddKey(key, payload); err != nil { return err }
//	}
//	return builder.Finish()
type Builder struct {
	ctx        context.Context
	cfg        *buildConfig
	iw         *indexWriter
	output     string
	keyCounter int
	closed     bool

	keys     []string
	payloads []uint64 // nil when PayloadSize is 0
}

// NewBuilder creates a new builder writing to output.
//
// totalKeys must be the exact number of keys that will be added; the file
// is allocated at its final size immediately.
func NewBuilder(ctx context.Context, output string, totalKeys uint64, opts ...BuildOption) (*Builder, error) {
	if totalKeys > chd.MaxKeys {
		return nil, chderrors.ErrTooManyKeys
	}

	cfg, err := newBuildConfig(opts)
	if err != nil {
		return nil, err
	}
	cfg.totalKeys = totalKeys

	iw, err := newIndexWriter(output, cfg)
	if err != nil {
		return nil, fmt.Errorf("create index writer: %w", err)
	}

	b := &Builder{
		ctx:    ctx,
		cfg:    cfg,
		iw:     iw,
		output: output,
		keys:   make([]string, 0, totalKeys),
	}
	if cfg.payloadSize > 0 {
		b.payloads = make([]uint64, 0, totalKeys)
	}
	return b, nil
}

// AddKey adds a key-payload pair to the index.
// The payload is passed as uint64; for smaller sizes (e.g., 4 bytes), pass uint64(yourUint32).
// Duplicate keys are detected in Finish.
func (b *Builder) AddKey(key string, payload uint64) error {
	if b.closed {
		return chderrors.ErrBuilderClosed
	}

	if err := checkPayload(payload, b.cfg.payloadSize); err != nil {
		return err
	}

	if uint64(len(b.keys)) >= b.cfg.totalKeys {
		return fmt.Errorf("%w: more than the declared %d keys",
			chderrors.ErrKeyCountMismatch, b.cfg.totalKeys)
	}

	b.keyCounter++
	if b.keyCounter >= contextCheckInterval {
		b.keyCounter = 0
		select {
		case <-b.ctx.Done():
			return b.ctx.Err()
		default:
		}
	}

	b.keys = append(b.keys, key)
	if b.payloads != nil {
		b.payloads = append(b.payloads, payload)
	}
	return nil
}

// Finish completes the index and writes it to disk.
// After calling Finish, the builder cannot be used again. On error the
// output file is removed.
func (b *Builder) Finish() error {
	if b.closed {
		return chderrors.ErrBuilderClosed
	}
	b.closed = true

	if uint64(len(b.keys)) != b.cfg.totalKeys {
		primaryErr := fmt.Errorf("%w: expected %d, got %d",
			chderrors.ErrKeyCountMismatch, b.cfg.totalKeys, len(b.keys))
		return errors.Join(primaryErr, b.cleanup())
	}

	res, stats, err := b.cfg.solve(b.ctx, b.keys)
	if err != nil {
		return errors.Join(err, b.cleanup())
	}

	if err := b.iw.writeDisplacements(res.Displacements); err != nil {
		return errors.Join(err, b.cleanup())
	}
	if err := b.writeEntries(res.Slots); err != nil {
		return errors.Join(err, b.cleanup())
	}
	b.iw.setStats(stats)

	if err := b.iw.finalize(); err != nil {
		return errors.Join(err, os.Remove(b.output))
	}
	b.cfg.logger.Log(b.cfg.logLvl, "[chd] index written", "file", b.output, "keys", len(b.keys))
	b.keys, b.payloads = nil, nil
	return nil
}

// writeEntries writes the fingerprint and payload of every key into its
// slot. Keys are split into contiguous ranges written in parallel; slots
// are distinct, so workers never touch the same bytes.
func (b *Builder) writeEntries(slots []uint32) error {
	if b.cfg.entrySize() == 0 || len(slots) == 0 {
		return nil
	}

	workers := b.cfg.workers
	if maxWorkers := len(slots) / minKeysPerWriter; workers > maxWorkers {
		workers = maxWorkers
	}
	if workers <= 1 {
		return b.writeEntryRange(b.ctx, slots, 0, len(slots))
	}

	g, gctx := errgroup.WithContext(b.ctx)
	chunk := (len(slots) + workers - 1) / workers
	for lo := 0; lo < len(slots); lo += chunk {
		hi := min(lo+chunk, len(slots))
		g.Go(func() error {
			return b.writeEntryRange(gctx, slots, lo, hi)
		})
	}
	return g.Wait()
}

// writeEntryRange writes entries for keys[lo:hi].
func (b *Builder) writeEntryRange(ctx context.Context, slots []uint32, lo, hi int) error {
	region := b.iw.payloadRegion()
	fpSize, payloadSize := b.cfg.fingerprintSize, b.cfg.payloadSize
	for i := lo; i < hi; i++ {
		if (i-lo)%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		var payload uint64
		if b.payloads != nil {
			payload = b.payloads[i]
		}
		encoding.PutEntry(region, int(slots[i]), fpSize, payloadSize, fingerprint(b.keys[i], fpSize), payload)
	}
	return nil
}

// Close aborts the build and cleans up resources.
// Call this if an error occurs during AddKey calls.
// Safe to call after Finish().
func (b *Builder) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.cleanup()
}

// cleanup releases the writer and removes the output file.
func (b *Builder) cleanup() error {
	b.keys, b.payloads = nil, nil
	return errors.Join(b.iw.close(), os.Remove(b.output))
}
