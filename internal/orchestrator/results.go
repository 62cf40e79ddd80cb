package orchestrator

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// ResultsWriter appends per-round metrics to a CSV file in the output
// directory, one row per finished round.
type ResultsWriter struct {
	path string
}

func NewResultsWriter(outputDir string, runID string) (*ResultsWriter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	path := filepath.Join(outputDir, fmt.Sprintf("results_%s.csv", runID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating results file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"round", "loss", "accuracy", "learning_rate"}); err != nil {
		return nil, fmt.Errorf("writing results header: %w", err)
	}
	writer.Flush()

	return &ResultsWriter{path: path}, writer.Error()
}

func (w *ResultsWriter) Path() string {
	return w.path
}

// Append writes one round's metrics. Opening per call keeps the file
// consistent if the process dies mid-run.
func (w *ResultsWriter) Append(round int, loss float64, accuracy float64, learningRate float64) error {
	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening results file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	record := []string{
		fmt.Sprintf("%d", round),
		fmt.Sprintf("%.4f", loss),
		fmt.Sprintf("%.4f", accuracy),
		fmt.Sprintf("%.6f", learningRate),
	}
	if err := writer.Write(record); err != nil {
		return fmt.Errorf("writing results record: %w", err)
	}
	writer.Flush()

	return writer.Error()
}
