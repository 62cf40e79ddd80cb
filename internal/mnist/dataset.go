package mnist

import (
	"fmt"
)

// NumClasses is the number of digit classes.
const NumClasses = 10

// ImageSize is the length of a flattened 28x28 image vector.
const ImageSize = 28 * 28

// Dataset holds flattened, normalized images with their labels.
type Dataset struct {
	Images [][]float64
	Labels []int
}

func (d *Dataset) Len() int {
	return len(d.Images)
}

// Subset returns a view over the samples at the given indices. The
// underlying image vectors are shared, not copied.
func (d *Dataset) Subset(indices []int) *Dataset {
	images := make([][]float64, len(indices))
	labels := make([]int, len(indices))
	for i, idx := range indices {
		images[i] = d.Images[idx]
		labels[i] = d.Labels[idx]
	}
	return &Dataset{Images: images, Labels: labels}
}

// ClassCounts returns the number of samples per class.
func (d *Dataset) ClassCounts() []int {
	counts := make([]int, NumClasses)
	for _, label := range d.Labels {
		counts[label]++
	}
	return counts
}

func (d *Dataset) validate() error {
	if len(d.Images) != len(d.Labels) {
		return fmt.Errorf("images/labels length mismatch: %d vs %d", len(d.Images), len(d.Labels))
	}
	for i, label := range d.Labels {
		if label < 0 || label >= NumClasses {
			return fmt.Errorf("sample %d: label %d out of range", i, label)
		}
	}
	return nil
}
