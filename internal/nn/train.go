package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/hitzht/federated-faceid/internal/mnist"
)

const evalBatchSize = 512

// TrainBatch runs one SGD step on a mini-batch and returns its mean
// cross-entropy loss.
func (net *Network) TrainBatch(images [][]float64, labels []int, learningRate float64) (float64, error) {
	batch := len(images)
	if batch == 0 {
		return 0, fmt.Errorf("empty batch")
	}
	if len(labels) != batch {
		return 0, fmt.Errorf("images/labels length mismatch: %d vs %d", batch, len(labels))
	}

	input := imagesToDense(images)
	activations, preActivations := net.forward(input)
	probs := activations[len(activations)-1]

	loss := 0.0
	for i, label := range labels {
		loss += -math.Log(math.Max(probs.At(i, label), 1e-12))
	}
	loss /= float64(batch)

	// Output layer gradient: (softmax - onehot) / batch.
	numLayers := len(net.weights)
	delta := mat.DenseCopyOf(probs)
	for i, label := range labels {
		delta.Set(i, label, delta.At(i, label)-1)
	}
	delta.Scale(1/float64(batch), delta)

	for l := numLayers - 1; l >= 0; l-- {
		out, in := net.sizes[l+1], net.sizes[l]

		gradW := mat.NewDense(out, in, nil)
		gradW.Mul(delta.T(), activations[l])

		gradB := columnSums(delta)

		if l > 0 {
			// Propagate through the ReLU of the previous layer.
			next := mat.NewDense(batch, in, nil)
			next.Mul(delta, net.weights[l])
			next.Apply(func(i, j int, v float64) float64 {
				if preActivations[l-1].At(i, j) > 0 {
					return v
				}
				return 0
			}, next)
			delta = next
		}

		gradW.Scale(learningRate, gradW)
		net.weights[l].Sub(net.weights[l], gradW)
		gradB.ScaleVec(learningRate, gradB)
		net.biases[l].SubVec(net.biases[l], gradB)
	}

	return loss, nil
}

// TrainEpoch shuffles the dataset and runs TrainBatch over every
// mini-batch, returning the mean loss across batches.
func (net *Network) TrainEpoch(dataset *mnist.Dataset, batchSize int, learningRate float64, rng *rand.Rand) (float64, error) {
	n := dataset.Len()
	if n == 0 {
		return 0, fmt.Errorf("empty dataset")
	}
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	order := rng.Perm(n)

	totalLoss := 0.0
	numBatches := 0
	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}

		images := make([][]float64, 0, end-start)
		labels := make([]int, 0, end-start)
		for _, idx := range order[start:end] {
			images = append(images, dataset.Images[idx])
			labels = append(labels, dataset.Labels[idx])
		}

		loss, err := net.TrainBatch(images, labels, learningRate)
		if err != nil {
			return 0, err
		}
		totalLoss += loss
		numBatches++
	}

	return totalLoss / float64(numBatches), nil
}

// Evaluate computes mean cross-entropy loss and accuracy over a dataset.
func (net *Network) Evaluate(dataset *mnist.Dataset) (loss float64, accuracy float64, err error) {
	n := dataset.Len()
	if n == 0 {
		return 0, 0, fmt.Errorf("empty dataset")
	}

	totalLoss := 0.0
	correct := 0
	for start := 0; start < n; start += evalBatchSize {
		end := start + evalBatchSize
		if end > n {
			end = n
		}

		input := imagesToDense(dataset.Images[start:end])
		activations, _ := net.forward(input)
		probs := activations[len(activations)-1]
		_, numClasses := probs.Dims()

		for i := start; i < end; i++ {
			row := i - start
			label := dataset.Labels[i]
			totalLoss += -math.Log(math.Max(probs.At(row, label), 1e-12))

			best, bestProb := 0, probs.At(row, 0)
			for j := 1; j < numClasses; j++ {
				if p := probs.At(row, j); p > bestProb {
					best, bestProb = j, p
				}
			}
			if best == label {
				correct++
			}
		}
	}

	return totalLoss / float64(n), float64(correct) / float64(n), nil
}

func imagesToDense(images [][]float64) *mat.Dense {
	rows := len(images)
	cols := len(images[0])
	dense := mat.NewDense(rows, cols, nil)
	for i, image := range images {
		dense.SetRow(i, image)
	}
	return dense
}

func columnSums(m *mat.Dense) *mat.VecDense {
	rows, cols := m.Dims()
	sums := mat.NewVecDense(cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sums.SetVec(j, sums.AtVec(j)+m.At(i, j))
		}
	}
	return sums
}
