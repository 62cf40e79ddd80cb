package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// DefaultLayerSizes is the 2NN architecture used for the MNIST
// experiments: two hidden layers of 200 units.
var DefaultLayerSizes = []int{784, 200, 200, 10}

// Network is a fully connected feed-forward classifier with ReLU hidden
// layers and a softmax output.
type Network struct {
	sizes   []int
	weights []*mat.Dense    // weights[l] has dims sizes[l+1] x sizes[l]
	biases  []*mat.VecDense // biases[l] has length sizes[l+1]
}

// New builds a network with He-initialized weights and zero biases.
func New(sizes []int, rng *rand.Rand) (*Network, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("need at least input and output layers, got %d sizes", len(sizes))
	}
	for i, size := range sizes {
		if size <= 0 {
			return nil, fmt.Errorf("layer %d has non-positive size %d", i, size)
		}
	}

	numLayers := len(sizes) - 1
	net := &Network{
		sizes:   append([]int(nil), sizes...),
		weights: make([]*mat.Dense, numLayers),
		biases:  make([]*mat.VecDense, numLayers),
	}

	for l := 0; l < numLayers; l++ {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2.0 / float64(in))
		data := make([]float64, out*in)
		for i := range data {
			data[i] = rng.NormFloat64() * scale
		}
		net.weights[l] = mat.NewDense(out, in, data)
		net.biases[l] = mat.NewVecDense(out, nil)
	}

	return net, nil
}

// LayerSizes returns a copy of the layer size list.
func (net *Network) LayerSizes() []int {
	return append([]int(nil), net.sizes...)
}

// NumParameters is the length of the flat parameter vector.
func (net *Network) NumParameters() int {
	total := 0
	for l := range net.weights {
		total += net.sizes[l]*net.sizes[l+1] + net.sizes[l+1]
	}
	return total
}

// Parameters flattens all weights and biases into a single vector, layer
// by layer, weights first. The layout is the contract for federated
// averaging and checkpoints.
func (net *Network) Parameters() []float64 {
	params := make([]float64, 0, net.NumParameters())
	for l := range net.weights {
		params = append(params, net.weights[l].RawMatrix().Data...)
		params = append(params, net.biases[l].RawVector().Data...)
	}
	return params
}

// SetParameters overwrites all weights and biases from a flat vector
// produced by Parameters.
func (net *Network) SetParameters(params []float64) error {
	if len(params) != net.NumParameters() {
		return fmt.Errorf("parameter length mismatch: got %d, want %d", len(params), net.NumParameters())
	}

	offset := 0
	for l := range net.weights {
		wLen := net.sizes[l] * net.sizes[l+1]
		copy(net.weights[l].RawMatrix().Data, params[offset:offset+wLen])
		offset += wLen

		bLen := net.sizes[l+1]
		copy(net.biases[l].RawVector().Data, params[offset:offset+bLen])
		offset += bLen
	}

	return nil
}

// Clone returns a deep copy of the network.
func (net *Network) Clone() *Network {
	clone := &Network{
		sizes:   append([]int(nil), net.sizes...),
		weights: make([]*mat.Dense, len(net.weights)),
		biases:  make([]*mat.VecDense, len(net.biases)),
	}
	for l := range net.weights {
		clone.weights[l] = mat.DenseCopyOf(net.weights[l])
		clone.biases[l] = mat.VecDenseCopyOf(net.biases[l])
	}
	return clone
}

// forward runs a batch through the network and returns the activations of
// every layer. activations[0] is the input batch, the last entry holds
// softmax probabilities. preActivations[l] is the input to layer l's
// nonlinearity, needed for backprop.
func (net *Network) forward(input *mat.Dense) (activations []*mat.Dense, preActivations []*mat.Dense) {
	numLayers := len(net.weights)
	activations = make([]*mat.Dense, numLayers+1)
	preActivations = make([]*mat.Dense, numLayers)
	activations[0] = input

	for l := 0; l < numLayers; l++ {
		batch, _ := activations[l].Dims()
		out := net.sizes[l+1]

		z := mat.NewDense(batch, out, nil)
		z.Mul(activations[l], net.weights[l].T())
		addBiasRows(z, net.biases[l])
		preActivations[l] = z

		a := mat.NewDense(batch, out, nil)
		if l == numLayers-1 {
			softmaxRows(a, z)
		} else {
			reluInto(a, z)
		}
		activations[l+1] = a
	}

	return activations, preActivations
}

// Predict returns the most likely class for a single sample.
func (net *Network) Predict(image []float64) int {
	input := mat.NewDense(1, len(image), append([]float64(nil), image...))
	activations, _ := net.forward(input)
	probs := activations[len(activations)-1]

	best, bestProb := 0, probs.At(0, 0)
	_, cols := probs.Dims()
	for j := 1; j < cols; j++ {
		if p := probs.At(0, j); p > bestProb {
			best, bestProb = j, p
		}
	}
	return best
}

func addBiasRows(z *mat.Dense, bias *mat.VecDense) {
	rows, cols := z.Dims()
	raw := z.RawMatrix()
	b := bias.RawVector().Data
	for i := 0; i < rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+cols]
		for j := range row {
			row[j] += b[j]
		}
	}
}

func reluInto(dst, src *mat.Dense) {
	dst.Apply(func(_, _ int, v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	}, src)
}

// softmaxRows writes row-wise softmax of src into dst, with the usual
// max-subtraction for numerical stability.
func softmaxRows(dst, src *mat.Dense) {
	rows, cols := src.Dims()
	for i := 0; i < rows; i++ {
		max := src.At(i, 0)
		for j := 1; j < cols; j++ {
			if v := src.At(i, j); v > max {
				max = v
			}
		}

		sum := 0.0
		for j := 0; j < cols; j++ {
			e := math.Exp(src.At(i, j) - max)
			dst.Set(i, j, e)
			sum += e
		}
		for j := 0; j < cols; j++ {
			dst.Set(i, j, dst.At(i, j)/sum)
		}
	}
}
