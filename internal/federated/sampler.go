package federated

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// SampleDevices picks the round's participants: a uniform sample without
// replacement of round(fraction * numDevices) devices, at least one.
func SampleDevices(numDevices int, fraction float64, rng *rand.Rand) ([]int, error) {
	if numDevices <= 0 {
		return nil, fmt.Errorf("numDevices must be positive, got %d", numDevices)
	}
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("fraction must be in (0, 1], got %g", fraction)
	}

	count := int(math.Round(fraction * float64(numDevices)))
	if count < 1 {
		count = 1
	}
	if count > numDevices {
		count = numDevices
	}

	sampled := append([]int(nil), rng.Perm(numDevices)[:count]...)
	sort.Ints(sampled)
	return sampled, nil
}
