// Package fnv implements the seeded FNV-1 style hash family used for both
// primary bucketing and per-bucket displacement.
//
// Each seed selects a different member of the family. Seed 0 is the
// primary (unsalted) hash and is folded with the FNV-1 prime as its
// starting value, so no trial seed ever collapses to a zero multiplier.
package fnv

// Prime is the 32-bit FNV-1 prime. It is also the working seed for seed 0.
const Prime = 0x01000193

// Hash folds the code points of key into a 32-bit value starting from seed.
// Bytes that are not valid UTF-8 fold as U+FFFD.
func Hash(seed uint32, key string) uint32 {
	acc := seed
	if acc == 0 {
		acc = Prime
	}
	for _, c := range key {
		acc = (acc * Prime) ^ uint32(c)
	}
	return acc
}

// Index maps key into [0, n) using the family member selected by seed.
// n must be non-zero.
func Index(seed uint32, key string, n uint32) uint32 {
	return Hash(seed, key) % n
}
