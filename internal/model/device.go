package model

// EdgeDeviceSettings carries the local training hyperparameters handed to
// every simulated client.
type EdgeDeviceSettings struct {
	Epochs            int
	BatchSize         int
	LearningRate      float64
	LearningRateDecay float64
}

// DeviceResult is what a client reports back to the server after one
// round of local training.
type DeviceResult struct {
	DeviceID   int
	Params     []float64
	Loss       float64
	NumSamples int
}
