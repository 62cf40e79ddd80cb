package federated

// Convergence detection defaults, tuned for accuracies in [0, 1].
const (
	DefaultStopThreshold = 0.005
	DefaultStopPatience  = 5
	DefaultStopWindow    = 3
)

// ConvergenceDetector decides when a run has stopped improving: the
// moving average of the accuracy curve must change by less than Threshold
// for Patience consecutive windows.
type ConvergenceDetector struct {
	Threshold float64
	Patience  int
	Window    int
}

func NewConvergenceDetector() *ConvergenceDetector {
	return &ConvergenceDetector{
		Threshold: DefaultStopThreshold,
		Patience:  DefaultStopPatience,
		Window:    DefaultStopWindow,
	}
}

// Converged reports whether the accuracy series has flattened out.
func (d *ConvergenceDetector) Converged(accuracies []float64) bool {
	averages := movingAverage(accuracies, d.Window)
	if len(averages) < d.Patience+1 {
		return false
	}

	for i := len(averages) - d.Patience; i < len(averages); i++ {
		improvement := averages[i] - averages[i-1]
		if improvement > d.Threshold || improvement < -d.Threshold {
			return false
		}
	}
	return true
}

func movingAverage(values []float64, windowSize int) []float64 {
	if windowSize <= 0 || len(values) < windowSize {
		return nil
	}

	averages := make([]float64, len(values)-windowSize+1)
	for i := 0; i <= len(values)-windowSize; i++ {
		sum := 0.0
		for j := i; j < i+windowSize; j++ {
			sum += values[j]
		}
		averages[i] = sum / float64(windowSize)
	}
	return averages
}
