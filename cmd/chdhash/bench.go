package main

import (
	"encoding/hex"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"runtime/metrics"
	"sync/atomic"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spaolacci/murmur3"
	"github.com/spf13/cobra"
	"github.com/tamirms/chdhash"
)

var benchFlags struct {
	keys    int
	payload int
	fp      int
	workers int
	queries int
	retries int
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure build time, query latency, and memory on synthetic keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n := benchFlags.keys
		if n <= 0 {
			return fmt.Errorf("--keys must be positive")
		}
		logger.Info("[bench] generating keys", "keys", n)
		keys := benchKeys(n, mrand.Uint32())
		payloads := make([]uint64, n)
		if benchFlags.payload > 0 {
			maxPayload := uint64(1)<<(8*min(benchFlags.payload, 8)-1) - 1
			for i := range payloads {
				payloads[i] = mrand.Uint64N(maxPayload + 1)
			}
		}

		dir, err := os.MkdirTemp("", "chdhash-bench-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		path := filepath.Join(dir, "bench.idx")

		sampler := startMemSampler()
		buildStart := time.Now()
		builder, err := chdhash.NewBuilder(cmd.Context(), path, uint64(n),
			chdhash.WithPayload(benchFlags.payload),
			chdhash.WithFingerprint(benchFlags.fp),
			chdhash.WithWorkers(benchFlags.workers),
			chdhash.WithRetries(benchFlags.retries),
			chdhash.WithLogger(logger),
		)
		if err != nil {
			sampler.stop()
			return err
		}
		for i, k := range keys {
			if err := builder.AddKey(k, payloads[i]); err != nil {
				sampler.stop()
				_ = builder.Close()
				return err
			}
		}
		err = builder.Finish()
		buildTime := time.Since(buildStart)
		peakHeap, peakRSS := sampler.stop()
		if err != nil {
			return err
		}

		idx, err := chdhash.Open(path)
		if err != nil {
			return err
		}
		defer idx.Close()

		logger.Info("[bench] querying", "queries", benchFlags.queries)
		order := mrand.Perm(n)
		query := idx.Query
		if idx.HasPayload() {
			query = idx.QueryPayload
		}
		for i := 0; i < min(10000, benchFlags.queries); i++ {
			_, _ = query(keys[order[i%n]])
		}
		queryStart := time.Now()
		for i := 0; i < benchFlags.queries; i++ {
			if _, err := query(keys[order[i%n]]); err != nil {
				return fmt.Errorf("query %q: %w", keys[order[i%n]], err)
			}
		}
		queryTime := time.Since(queryStart)

		logger.Info("[bench] building in-memory table")
		tableStart := time.Now()
		table, err := chdhash.Build(cmd.Context(), keys, payloads,
			chdhash.WithWorkers(benchFlags.workers),
			chdhash.WithRetries(benchFlags.retries),
		)
		if err != nil {
			return err
		}
		tableBuildTime := time.Since(tableStart)
		lookupStart := time.Now()
		for i := 0; i < benchFlags.queries; i++ {
			if _, ok := table.Lookup(keys[order[i%n]]); !ok {
				return fmt.Errorf("table lookup %q failed", keys[order[i%n]])
			}
		}
		lookupTime := time.Since(lookupStart)

		printBenchResults(cmd.OutOrStdout(), benchResults{
			stats:          idx.Stats(),
			buildTime:      buildTime,
			queryTime:      queryTime,
			tableBuildTime: tableBuildTime,
			lookupTime:     lookupTime,
			queries:        benchFlags.queries,
			peakHeap:       peakHeap,
			peakRSS:        peakRSS,
		})
		return nil
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchFlags.keys, "keys", 1_000_000, "number of keys")
	benchCmd.Flags().IntVar(&benchFlags.payload, "payload", 4, "payload size in bytes (0 for MPHF only)")
	benchCmd.Flags().IntVar(&benchFlags.fp, "fp", 1, "fingerprint size in bytes")
	benchCmd.Flags().IntVar(&benchFlags.workers, "workers", runtime.GOMAXPROCS(0), "parallel workers")
	benchCmd.Flags().IntVar(&benchFlags.queries, "queries", 100_000, "number of timed queries")
	benchCmd.Flags().IntVar(&benchFlags.retries, "retries", 3, "rebuild attempts after displacement exhaustion")
}

// benchKeys derives n distinct hex keys from the murmur3 hash of their index.
func benchKeys(n int, seed uint32) []string {
	keys := make([]string, n)
	seen := make(map[string]struct{}, n)
	var buf [8]byte
	for i, c := 0, uint64(0); i < n; c++ {
		for j := range buf {
			buf[j] = byte(c >> (8 * j))
		}
		h1, h2 := murmur3.Sum128WithSeed(buf[:], seed)
		var sum [16]byte
		for j := 0; j < 8; j++ {
			sum[j] = byte(h1 >> (8 * j))
			sum[8+j] = byte(h2 >> (8 * j))
		}
		k := hex.EncodeToString(sum[:])
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys[i] = k
		i++
	}
	return keys
}

type memSampler struct {
	baseHeap, baseRSS uint64
	peakHeap, peakRSS atomic.Uint64
	done              chan struct{}
	finished          chan struct{}
}

// startMemSampler polls heap and RSS every 10ms. runtime/metrics avoids the
// stop-the-world pause of ReadMemStats.
func startMemSampler() *memSampler {
	runtime.GC()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s := &memSampler{
		baseHeap: ms.HeapAlloc,
		baseRSS:  maxRSS(),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	s.peakHeap.Store(s.baseHeap)
	s.peakRSS.Store(s.baseRSS)
	go func() {
		defer close(s.finished)
		samples := []metrics.Sample{{Name: "/memory/classes/heap/objects:bytes"}}
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				metrics.Read(samples)
				if samples[0].Value.Kind() == metrics.KindUint64 {
					storeMax(&s.peakHeap, samples[0].Value.Uint64())
				}
				storeMax(&s.peakRSS, maxRSS())
			}
		}
	}()
	return s
}

// stop ends sampling and returns peak heap and RSS growth over the baseline.
func (s *memSampler) stop() (heap, rss uint64) {
	close(s.done)
	<-s.finished
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	storeMax(&s.peakHeap, ms.HeapAlloc)
	storeMax(&s.peakRSS, maxRSS())
	return s.peakHeap.Load() - s.baseHeap, s.peakRSS.Load() - s.baseRSS
}

func storeMax(v *atomic.Uint64, x uint64) {
	for {
		old := v.Load()
		if x <= old || v.CompareAndSwap(old, x) {
			return
		}
	}
}

type benchResults struct {
	stats     *chdhash.Stats
	buildTime time.Duration
	queryTime time.Duration
	queries   int
	peakHeap  uint64
	peakRSS   uint64

	tableBuildTime time.Duration
	lookupTime     time.Duration
}

func printBenchResults(w io.Writer, r benchResults) {
	s := r.stats
	payloadBits := float64(s.PayloadSize * 8)
	fpBits := float64(s.FingerprintSize * 8)
	var latency float64
	if r.queries > 0 {
		latency = float64(r.queryTime.Nanoseconds()) / float64(r.queries) / 1000
	}
	var lookupLatency float64
	if r.queries > 0 {
		lookupLatency = float64(r.lookupTime.Nanoseconds()) / float64(r.queries) / 1000
	}
	var throughput float64
	if r.buildTime > 0 {
		throughput = float64(s.NumKeys) / r.buildTime.Seconds() / 1_000_000
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "╔═════════════════════╦══════════════════╗\n")
	fmt.Fprintf(w, "║ Metric              ║ Value            ║\n")
	fmt.Fprintf(w, "╠═════════════════════╬══════════════════╣\n")
	fmt.Fprintf(w, "║ Keys                ║ %16d ║\n", s.NumKeys)
	fmt.Fprintf(w, "║ Index size          ║ %16s ║\n", datasize.ByteSize(s.IndexSize).HumanReadable())
	fmt.Fprintf(w, "║ Bits per key        ║ %11.3f bits ║\n", s.BitsPerKey)
	fmt.Fprintf(w, "║   - Payload         ║ %11.3f bits ║\n", payloadBits)
	fmt.Fprintf(w, "║   - Fingerprint     ║ %11.3f bits ║\n", fpBits)
	fmt.Fprintf(w, "║   - Displacements   ║ %11.3f bits ║\n", s.BitsPerKey-payloadBits-fpBits)
	fmt.Fprintf(w, "║ Max displacement    ║ %16d ║\n", s.MaxDisplacement)
	fmt.Fprintf(w, "║ Query latency       ║ %13.3f μs ║\n", latency)
	fmt.Fprintf(w, "║ Build time          ║ %12.2f sec ║\n", r.buildTime.Seconds())
	fmt.Fprintf(w, "║ Build throughput    ║ %10.2f M/sec ║\n", throughput)
	fmt.Fprintf(w, "║ Table build time    ║ %12.2f sec ║\n", r.tableBuildTime.Seconds())
	fmt.Fprintf(w, "║ Table lookup        ║ %13.3f μs ║\n", lookupLatency)
	fmt.Fprintf(w, "║ Peak heap growth    ║ %16s ║\n", datasize.ByteSize(r.peakHeap).HumanReadable())
	fmt.Fprintf(w, "║ Peak RSS growth     ║ %16s ║\n", datasize.ByteSize(r.peakRSS).HumanReadable())
	fmt.Fprintf(w, "╚═════════════════════╩══════════════════╝\n")
}
