package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzht/federated-faceid/internal/mnist"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(7))
}

// syntheticDataset builds a trivially separable classification problem:
// class c has feature c lit up, plus a little noise.
func syntheticDataset(n int, dim int, numClasses int, rng *rand.Rand) *mnist.Dataset {
	images := make([][]float64, n)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		label := i % numClasses
		image := make([]float64, dim)
		for j := range image {
			image[j] = rng.NormFloat64() * 0.1
		}
		image[label] += 2.0
		images[i] = image
		labels[i] = label
	}
	return &mnist.Dataset{Images: images, Labels: labels}
}

func TestNewValidation(t *testing.T) {
	rng := testRNG()

	_, err := New([]int{10}, rng)
	assert.Error(t, err)

	_, err = New([]int{10, 0, 3}, rng)
	assert.Error(t, err)

	net, err := New([]int{4, 6, 3}, rng)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 6, 3}, net.LayerSizes())
	assert.Equal(t, 4*6+6+6*3+3, net.NumParameters())
}

func TestParametersRoundTrip(t *testing.T) {
	rng := testRNG()

	net, err := New([]int{4, 6, 3}, rng)
	require.NoError(t, err)
	other, err := New([]int{4, 6, 3}, rng)
	require.NoError(t, err)

	params := net.Parameters()
	require.Len(t, params, net.NumParameters())
	require.NoError(t, other.SetParameters(params))
	assert.Equal(t, params, other.Parameters())

	assert.Error(t, other.SetParameters(params[:10]))
}

func TestCloneIsIndependent(t *testing.T) {
	rng := testRNG()

	net, err := New([]int{4, 6, 3}, rng)
	require.NoError(t, err)

	clone := net.Clone()
	before := net.Parameters()

	changed := clone.Parameters()
	changed[0] += 10
	require.NoError(t, clone.SetParameters(changed))

	assert.Equal(t, before, net.Parameters())
}

func TestPredictPicksLitFeature(t *testing.T) {
	rng := testRNG()

	dataset := syntheticDataset(90, 6, 3, rng)
	net, err := New([]int{6, 12, 3}, rng)
	require.NoError(t, err)

	for epoch := 0; epoch < 10; epoch++ {
		_, err := net.TrainEpoch(dataset, 10, 0.1, rng)
		require.NoError(t, err)
	}

	correct := 0
	for i, image := range dataset.Images {
		if net.Predict(image) == dataset.Labels[i] {
			correct++
		}
	}
	assert.GreaterOrEqual(t, correct, 80)
}

func TestTrainEpochReducesLoss(t *testing.T) {
	rng := testRNG()

	dataset := syntheticDataset(90, 6, 3, rng)
	net, err := New([]int{6, 12, 3}, rng)
	require.NoError(t, err)

	initialLoss, _, err := net.Evaluate(dataset)
	require.NoError(t, err)

	for epoch := 0; epoch < 5; epoch++ {
		_, err := net.TrainEpoch(dataset, 10, 0.1, rng)
		require.NoError(t, err)
	}

	finalLoss, accuracy, err := net.Evaluate(dataset)
	require.NoError(t, err)
	assert.Less(t, finalLoss, initialLoss)
	assert.GreaterOrEqual(t, accuracy, 0.9)
}

// TestTrainBatchGradients compares the SGD update against numerical
// gradients of the batch loss. With learning rate 1 the parameter delta
// is exactly the gradient.
func TestTrainBatchGradients(t *testing.T) {
	rng := testRNG()

	net, err := New([]int{4, 5, 3}, rng)
	require.NoError(t, err)

	images := make([][]float64, 6)
	labels := make([]int, 6)
	for i := range images {
		image := make([]float64, 4)
		for j := range image {
			image[j] = rng.NormFloat64()
		}
		images[i] = image
		labels[i] = i % 3
	}
	batch := &mnist.Dataset{Images: images, Labels: labels}

	before := net.Parameters()

	trained := net.Clone()
	_, err = trained.TrainBatch(images, labels, 1.0)
	require.NoError(t, err)
	after := trained.Parameters()

	const eps = 1e-5
	probe := net.Clone()
	for _, idx := range []int{0, 3, 11, 25, len(before) - 1} {
		perturbed := append([]float64(nil), before...)

		perturbed[idx] = before[idx] + eps
		require.NoError(t, probe.SetParameters(perturbed))
		lossPlus, _, err := probe.Evaluate(batch)
		require.NoError(t, err)

		perturbed[idx] = before[idx] - eps
		require.NoError(t, probe.SetParameters(perturbed))
		lossMinus, _, err := probe.Evaluate(batch)
		require.NoError(t, err)

		numerical := (lossPlus - lossMinus) / (2 * eps)
		actual := before[idx] - after[idx]
		assert.InDelta(t, numerical, actual, 1e-4, "parameter %d", idx)
	}
}

func TestTrainBatchValidation(t *testing.T) {
	rng := testRNG()

	net, err := New([]int{4, 3}, rng)
	require.NoError(t, err)

	_, err = net.TrainBatch(nil, nil, 0.1)
	assert.Error(t, err)

	_, err = net.TrainBatch([][]float64{{1, 2, 3, 4}}, []int{0, 1}, 0.1)
	assert.Error(t, err)
}
