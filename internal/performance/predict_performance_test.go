package performance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogarithmicRegressionExactFit(t *testing.T) {
	// Points generated from f(x) = 2 + 3*ln(x+1).
	xs := []float64{1, 2, 5, 10, 20}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = 2 + 3*math.Log(x+1)
	}

	regression, err := NewLogarithmicRegression(xs, ys)
	require.NoError(t, err)

	assert.InDelta(t, 2+3*math.Log(8), regression.PredictY(7), 1e-9)
	assert.InDelta(t, 7, regression.PredictX(2+3*math.Log(8)), 1e-6)
	assert.Contains(t, regression.PrintFunction(), "ln(x+1)")
}

func TestLogarithmicRegressionErrors(t *testing.T) {
	_, err := NewLogarithmicRegression([]float64{1, 2}, []float64{1})
	assert.Error(t, err)

	_, err = NewLogarithmicRegression([]float64{1}, []float64{1})
	assert.Error(t, err)
}

func TestPredictRoundForAccuracy(t *testing.T) {
	accuracies := make([]float64, 30)
	for i := range accuracies {
		accuracies[i] = 0.5 + 0.05*math.Log(float64(i+2))
	}

	prediction, err := NewPerformancePrediction(accuracies, LogarithmicRegressionPredictionType, 0)
	require.NoError(t, err)

	round := prediction.PredictRoundForAccuracy(0.75)
	assert.Greater(t, round, 30)

	predicted := prediction.PredictAccuracy(round)
	assert.InDelta(t, 0.75, predicted, 0.01)
}

func TestPredictRoundForAccuracyFlatCurve(t *testing.T) {
	// A flat curve has b == 0 and cannot be inverted.
	prediction, err := NewPerformancePrediction([]float64{0.9, 0.9, 0.9, 0.9}, LogarithmicRegressionPredictionType, 0)
	require.NoError(t, err)

	assert.Equal(t, -1, prediction.PredictRoundForAccuracy(0.99))
}

func TestUnknownPredictionType(t *testing.T) {
	_, err := NewPerformancePrediction([]float64{0.1, 0.2, 0.3}, "quadratic", 0)
	assert.ErrorContains(t, err, "unknown prediction type")
}

func TestPredictionOffsetShiftsRounds(t *testing.T) {
	ys := make([]float64, 10)
	for i := range ys {
		ys[i] = 2 + 3*math.Log(float64(i+1+5)+1)
	}

	prediction, err := NewPerformancePrediction(ys, LogarithmicRegressionPredictionType, 5)
	require.NoError(t, err)

	assert.InDelta(t, 2+3*math.Log(7), prediction.PredictAccuracy(6), 1e-9)
}
