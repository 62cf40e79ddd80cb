package mnist

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIID(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	partitions, err := SplitIID(103, 10, rng)
	require.NoError(t, err)
	require.Len(t, partitions, 10)

	seen := map[int]bool{}
	total := 0
	for _, partition := range partitions {
		assert.GreaterOrEqual(t, len(partition), 10)
		assert.LessOrEqual(t, len(partition), 11)
		for _, idx := range partition {
			assert.False(t, seen[idx], "index %d assigned twice", idx)
			seen[idx] = true
		}
		total += len(partition)
	}
	assert.Equal(t, 103, total)
}

func TestSplitIIDTooManyUsers(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := SplitIID(5, 10, rng)
	assert.Error(t, err)
}

func TestSplitNonIID(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	// 200 samples, labels 0..9 in blocks of 20.
	labels := make([]int, 200)
	for i := range labels {
		labels[i] = i / 20
	}

	partitions, err := SplitNonIID(labels, 10, 2, rng)
	require.NoError(t, err)
	require.Len(t, partitions, 10)

	seen := map[int]bool{}
	total := 0
	for _, partition := range partitions {
		for _, idx := range partition {
			assert.False(t, seen[idx], "index %d assigned twice", idx)
			seen[idx] = true
		}
		total += len(partition)

		// Two shards of size 10 means at most two distinct labels
		// per client.
		distinct := map[int]bool{}
		for _, idx := range partition {
			distinct[labels[idx]] = true
		}
		assert.LessOrEqual(t, len(distinct), 2)
	}
	assert.Equal(t, 200, total)
}

func TestSplitNonIIDCoversRemainder(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	labels := make([]int, 107)
	for i := range labels {
		labels[i] = i % 10
	}

	partitions, err := SplitNonIID(labels, 5, 2, rng)
	require.NoError(t, err)

	total := 0
	for _, partition := range partitions {
		total += len(partition)
	}
	assert.Equal(t, 107, total)
}

func TestSplitNonIIDTooManyShards(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := SplitNonIID(make([]int, 10), 8, 2, rng)
	assert.Error(t, err)
}
