package performance

import (
	"fmt"
	"math"
)

const LogarithmicRegressionPredictionType = "log-reg"

// PerformancePrediction projects the accuracy curve of a running training
// job forward, so the orchestrator can estimate how many more global rounds
// a target accuracy will take.
type PerformancePrediction struct {
	regressionFunction Regression
}

// NewPerformancePrediction fits a regression to the per-round accuracies.
// The offset shifts the x axis when the series does not start at round 1
// (e.g. after a checkpoint restore).
func NewPerformancePrediction(accuracies []float64, predictionType string, offset int) (*PerformancePrediction, error) {
	xs, ys := prepareXAndY(accuracies, offset)

	pp := &PerformancePrediction{}
	switch predictionType {
	case LogarithmicRegressionPredictionType:
		regression, err := NewLogarithmicRegression(xs, ys)
		if err != nil {
			return nil, err
		}
		pp.regressionFunction = regression
	default:
		return nil, fmt.Errorf("unknown prediction type %q", predictionType)
	}

	return pp, nil
}

func (pp *PerformancePrediction) PredictAccuracy(round int) float64 {
	return pp.regressionFunction.PredictY(float64(round))
}

func (pp *PerformancePrediction) PredictRoundForAccuracy(accuracy float64) int {
	predicted := math.Ceil(pp.regressionFunction.PredictX(accuracy))
	if math.IsNaN(predicted) || math.IsInf(predicted, 0) {
		return -1
	}
	return int(predicted)
}

func (pp *PerformancePrediction) PrintPrediction() string {
	return pp.regressionFunction.PrintFunction()
}

func prepareXAndY(values []float64, offset int) ([]float64, []float64) {
	xs := make([]float64, len(values))
	ys := make([]float64, len(values))

	for i, value := range values {
		xs[i] = float64(i + 1 + offset)
		ys[i] = value
	}

	return xs, ys
}
