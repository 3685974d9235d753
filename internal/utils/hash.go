package utils

import "hash/fnv"

// Bucket maps key onto one of n buckets. The mapping is stable across
// processes, so it can pick lock shards or deterministic canned replies.
// n must be positive.
func Bucket(key string, n int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(n))
}
