// Package chdhash builds minimal perfect hash functions over string keys
// using the compress-hash-displace (CHD) construction.
//
// A minimal perfect hash maps each of N distinct keys to a distinct integer
// in [0, N). Lookups read a single displacement entry and hash the key at
// most twice.
//
// # In-memory tables
//
//	tbl, err := chdhash.Build(ctx, keys, values)
//	if err != nil {
//	    return err
//	}
//	v, err := tbl.Get("mykey")
//
// Displacements and Values return the two arrays that define a table;
// NewTable restores a table from them.
//
// # Index files
//
// Building an index:
//
//	builder, err := chdhash.NewBuilder(ctx, "index.idx", totalKeys, chdhash.WithPayload(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer builder.Close()
//	for key, payload := range data {
//	    if err := builder.AddKey(key, payload); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	if err := builder.Finish(); err != nil {
//	    log.Fatal(err)
//	}
//
// Querying an index:
//
//	idx, err := chdhash.Open("index.idx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
//
//	slot, err := idx.Query("mykey")
//
// # Membership
//
// Without fingerprints, looking up a key that was not in the build set
// returns an arbitrary member's slot. WithFingerprint stores a short xxh3
// fingerprint per slot so foreign keys are rejected with high probability.
//
// # Limitations
//
// Keys are hashed as sequences of Unicode code points with a 32-bit FNV-1
// style fold. When N is a power of two, a key's slot under displacement d
// depends only on d mod N, and keys that share a bucket and differ only in
// high code point bits can never be separated. Such builds fail with
// ErrDisplacementExhausted, and WithRetries does not retry them because the
// first attempt has already tried every distinct seed.
//
// # Package Structure
//
//   - Public API: table.go (Build, Table), builder.go (NewBuilder, AddKey, Finish), index.go (Open, Query)
//   - Configuration: builder_options.go (BuildOption, With* functions)
//   - Construction: algorithm.go (retries, statistics), internal/chd, internal/fnv
//   - Serialization: header.go (header, footer, layout), index_writer.go, internal/encoding
//   - Platform: fallocate_*.go, prefault_*.go, fadvise_*.go
package chdhash
