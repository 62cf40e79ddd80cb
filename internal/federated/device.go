// Package federated implements the simulated federated learning loop:
// edge devices training on private partitions, per-round client sampling,
// and federated averaging of the resulting models.
package federated

import (
	"fmt"
	"math/rand"

	"github.com/hashicorp/go-hclog"

	"github.com/hitzht/federated-faceid/internal/mnist"
	"github.com/hitzht/federated-faceid/internal/model"
	"github.com/hitzht/federated-faceid/internal/nn"
)

// EdgeDevice simulates a federated client. It owns a private data
// partition and a local model replica that is overwritten with the global
// weights at the start of every round it participates in.
type EdgeDevice struct {
	id       int
	name     string
	dataset  *mnist.Dataset
	settings model.EdgeDeviceSettings
	logger   hclog.Logger

	net *nn.Network
	rng *rand.Rand
}

// NewEdgeDevice creates a device with its own model replica and RNG. Each
// device gets a deterministic seed so concurrent rounds stay reproducible.
func NewEdgeDevice(id int, dataset *mnist.Dataset, settings model.EdgeDeviceSettings,
	layerSizes []int, seed int64, logger hclog.Logger) (*EdgeDevice, error) {
	if dataset.Len() == 0 {
		return nil, fmt.Errorf("device %d has no data", id)
	}

	rng := rand.New(rand.NewSource(seed))
	net, err := nn.New(layerSizes, rng)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("u%d", id)
	return &EdgeDevice{
		id:       id,
		name:     name,
		dataset:  dataset,
		settings: settings,
		logger:   logger.Named(name),
		net:      net,
		rng:      rng,
	}, nil
}

func (d *EdgeDevice) ID() int {
	return d.id
}

func (d *EdgeDevice) NumSamples() int {
	return d.dataset.Len()
}

// ClassCounts exposes the label distribution of the device's partition,
// used for logging how skewed a non-IID split came out.
func (d *EdgeDevice) ClassCounts() []int {
	return d.dataset.ClassCounts()
}

// TrainRound loads the global parameters into the local replica, trains
// for the configured number of local epochs, and returns the updated
// parameters together with the mean training loss of the final epoch.
// Devices never share state, so distinct devices may run concurrently.
func (d *EdgeDevice) TrainRound(globalParams []float64, learningRate float64) (model.DeviceResult, error) {
	if err := d.net.SetParameters(globalParams); err != nil {
		return model.DeviceResult{}, fmt.Errorf("device %s: %w", d.name, err)
	}

	lastLoss := 0.0
	for epoch := 0; epoch < d.settings.Epochs; epoch++ {
		loss, err := d.net.TrainEpoch(d.dataset, d.settings.BatchSize, learningRate, d.rng)
		if err != nil {
			return model.DeviceResult{}, fmt.Errorf("device %s epoch %d: %w", d.name, epoch, err)
		}
		lastLoss = loss
	}

	d.logger.Debug(fmt.Sprintf("Local training done, loss %.4f", lastLoss))

	return model.DeviceResult{
		DeviceID:   d.id,
		Params:     d.net.Parameters(),
		Loss:       lastLoss,
		NumSamples: d.dataset.Len(),
	}, nil
}
