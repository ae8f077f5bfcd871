package chdhash

import (
	"context"
	"path/filepath"
	"testing"
)

func benchmarkIndex(b *testing.B, n int, opts ...BuildOption) (*Index, []string) {
	b.Helper()
	keys := sequentialKeys(n)
	payloads := make([]uint64, n)
	for i := range payloads {
		payloads[i] = uint64(i)
	}
	path := filepath.Join(b.TempDir(), "bench.idx")
	if err := buildIndexFile(context.Background(), path, keys, payloads, opts...); err != nil {
		b.Fatal(err)
	}
	idx, err := Open(path)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { idx.Close() })
	return idx, keys
}

func BenchmarkIndexQuery(b *testing.B) {
	idx, keys := benchmarkIndex(b, 100001)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.Query(keys[i%len(keys)]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkIndexQueryPayload(b *testing.B) {
	idx, keys := benchmarkIndex(b, 100001, WithPayload(4), WithFingerprint(2))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.QueryPayload(keys[i%len(keys)]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBuilder(b *testing.B) {
	keys := sequentialKeys(200001)
	dir := b.TempDir()
	for _, workers := range []int{1, 4} {
		b.Run(map[int]string{1: "serial", 4: "workers4"}[workers], func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				path := filepath.Join(dir, "bench.idx")
				if err := buildIndexFile(context.Background(), path, keys, nil,
					WithFingerprint(1), WithWorkers(workers)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
