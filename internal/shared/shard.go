package shared

import "github.com/cespare/xxhash/v2"

// ShardIndex maps key onto one of n shards.
func ShardIndex(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(n))
}
