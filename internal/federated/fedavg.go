package federated

import (
	"fmt"

	"github.com/hitzht/federated-faceid/internal/model"
)

// Average computes the federated average of the device results: the
// sample-count-weighted mean of their parameter vectors.
func Average(results []model.DeviceResult) ([]float64, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no device results to average")
	}

	numParams := len(results[0].Params)
	totalSamples := 0
	for _, result := range results {
		if len(result.Params) != numParams {
			return nil, fmt.Errorf("device %d returned %d params, want %d",
				result.DeviceID, len(result.Params), numParams)
		}
		if result.NumSamples <= 0 {
			return nil, fmt.Errorf("device %d reported %d samples", result.DeviceID, result.NumSamples)
		}
		totalSamples += result.NumSamples
	}

	averaged := make([]float64, numParams)
	for _, result := range results {
		weight := float64(result.NumSamples) / float64(totalSamples)
		for i, p := range result.Params {
			averaged[i] += weight * p
		}
	}

	return averaged, nil
}

// WeightedLoss averages the device training losses with the same sample
// weighting used for the parameters.
func WeightedLoss(results []model.DeviceResult) float64 {
	totalSamples := 0
	for _, result := range results {
		totalSamples += result.NumSamples
	}
	if totalSamples == 0 {
		return 0
	}

	loss := 0.0
	for _, result := range results {
		loss += result.Loss * float64(result.NumSamples) / float64(totalSamples)
	}
	return loss
}
