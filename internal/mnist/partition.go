package mnist

import (
	"fmt"
	"math/rand"
	"sort"
)

// DefaultShardsPerUser is the shard count per client for the non-IID
// split: 60000 samples over 100 clients gives 2 shards of 300 each.
const DefaultShardsPerUser = 2

// SplitIID partitions sample indices 0..n-1 into numUsers random,
// disjoint, near-equal groups.
func SplitIID(n int, numUsers int, rng *rand.Rand) ([][]int, error) {
	if numUsers <= 0 {
		return nil, fmt.Errorf("numUsers must be positive, got %d", numUsers)
	}
	if numUsers > n {
		return nil, fmt.Errorf("cannot split %d samples across %d users", n, numUsers)
	}

	perm := rng.Perm(n)
	partitions := make([][]int, numUsers)

	div := n / numUsers
	mod := n % numUsers
	offset := 0
	for i := 0; i < numUsers; i++ {
		size := div
		if i < mod {
			size++
		}
		partitions[i] = perm[offset : offset+size]
		offset += size
	}

	return partitions, nil
}

// SplitNonIID partitions sample indices by sorting them on label and
// dealing out contiguous shards, so every client ends up with samples
// from only a few classes. This is the pathological split from the
// federated averaging experiments.
func SplitNonIID(labels []int, numUsers int, shardsPerUser int, rng *rand.Rand) ([][]int, error) {
	if numUsers <= 0 {
		return nil, fmt.Errorf("numUsers must be positive, got %d", numUsers)
	}
	if shardsPerUser <= 0 {
		return nil, fmt.Errorf("shardsPerUser must be positive, got %d", shardsPerUser)
	}

	n := len(labels)
	numShards := numUsers * shardsPerUser
	if numShards > n {
		return nil, fmt.Errorf("cannot cut %d samples into %d shards", n, numShards)
	}

	// Sort indices by label; equal labels keep their original order.
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return labels[indices[i]] < labels[indices[j]]
	})

	shardSize := n / numShards
	shardOrder := rng.Perm(numShards)

	partitions := make([][]int, numUsers)
	for user := 0; user < numUsers; user++ {
		var partition []int
		for s := 0; s < shardsPerUser; s++ {
			shard := shardOrder[user*shardsPerUser+s]
			start := shard * shardSize
			end := start + shardSize
			if shard == numShards-1 {
				end = n // last shard absorbs the remainder
			}
			partition = append(partition, indices[start:end]...)
		}
		partitions[user] = partition
	}

	return partitions, nil
}
