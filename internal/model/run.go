package model

import "time"

// RunStatus tracks the lifecycle of a training run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusFinished  RunStatus = "finished"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// Stop reasons reported in RunResult.
const (
	StopReasonRoundsExhausted = "rounds_exhausted"
	StopReasonConverged       = "converged"
	StopReasonTargetAccuracy  = "target_accuracy"
	StopReasonCancelled       = "cancelled"
)

// RunResult summarizes a completed training run.
type RunResult struct {
	RunID         string        `json:"runId"`
	Rounds        int           `json:"rounds"`
	FinalLoss     float64       `json:"finalLoss"`
	FinalAccuracy float64       `json:"finalAccuracy"`
	StopReason    string        `json:"stopReason"`
	Duration      time.Duration `json:"duration"`
}

// ProgressSnapshot is a point-in-time copy of the run progress, safe to
// hand out to API clients while the run is still going.
type ProgressSnapshot struct {
	RunID      string    `json:"runId"`
	Status     RunStatus `json:"status"`
	Round      int       `json:"round"`
	Losses     []float64 `json:"losses"`
	Accuracies []float64 `json:"accuracies"`
}
