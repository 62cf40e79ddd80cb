// Package orchestrator wires a training run together: data loading and
// partitioning, the trainer for the selected mode, progress tracking,
// results output, scheduled checkpoints, and run lifecycle.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"

	"github.com/hitzht/federated-faceid/internal/config"
	"github.com/hitzht/federated-faceid/internal/events"
	"github.com/hitzht/federated-faceid/internal/federated"
	"github.com/hitzht/federated-faceid/internal/mnist"
	"github.com/hitzht/federated-faceid/internal/model"
	"github.com/hitzht/federated-faceid/internal/nn"
	"github.com/hitzht/federated-faceid/internal/performance"
)

// How often (in rounds) the accuracy projection is refreshed, and how
// many observations it needs before the fit is worth logging.
const (
	predictionInterval   = 25
	predictionMinSamples = 8
)

type trainerRunner interface {
	Run(ctx context.Context) (*model.RunResult, error)
	Snapshot() ([]float64, int)
}

// Orchestrator owns a single training run end to end.
type Orchestrator struct {
	logger   hclog.Logger
	eventBus *events.EventBus
	settings config.Settings
	runID    string

	net           *nn.Network
	runner        trainerRunner
	results       *ResultsWriter
	cronScheduler *cron.Cron

	mu         sync.Mutex
	status     model.RunStatus
	round      int
	losses     []float64
	accuracies []float64
}

// New builds a run from settings: loads the dataset, constructs the
// model, and prepares the federated or centralized trainer.
func New(logger hclog.Logger, eventBus *events.EventBus, settings config.Settings) (*Orchestrator, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	runID := settings.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	trainSet, err := mnist.LoadTraining(settings.DataDir)
	if err != nil {
		return nil, fmt.Errorf("loading training data: %w", err)
	}
	testSet, err := mnist.LoadTest(settings.DataDir)
	if err != nil {
		return nil, fmt.Errorf("loading test data: %w", err)
	}

	return newWithData(logger, eventBus, settings, runID, trainSet, testSet)
}

// NewWithData is New with the datasets supplied by the caller. The HTTP
// API uses it to share one loaded copy of MNIST across runs.
func NewWithData(logger hclog.Logger, eventBus *events.EventBus, settings config.Settings,
	trainSet *mnist.Dataset, testSet *mnist.Dataset) (*Orchestrator, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	runID := settings.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	return newWithData(logger, eventBus, settings, runID, trainSet, testSet)
}

func newWithData(logger hclog.Logger, eventBus *events.EventBus, settings config.Settings,
	runID string, trainSet *mnist.Dataset, testSet *mnist.Dataset) (*Orchestrator, error) {
	logger = logger.Named(runID)
	rng := rand.New(rand.NewSource(settings.Seed))

	net, err := nn.New(nn.DefaultLayerSizes, rng)
	if err != nil {
		return nil, err
	}

	orch := &Orchestrator{
		logger:        logger,
		eventBus:      eventBus,
		settings:      settings,
		runID:         runID,
		net:           net,
		cronScheduler: cron.New(),
		status:        model.RunStatusRunning,
	}

	if settings.Federated {
		orch.runner, err = buildFederatedTrainer(logger, eventBus, settings, net, trainSet, testSet, rng)
	} else {
		orch.runner, err = federated.NewCentralizedTrainer(logger, eventBus, federated.CentralizedConfig{
			Epochs:            settings.NumGlobalEpochs,
			BatchSize:         settings.NumGlobalBatch,
			LearningRate:      settings.LearningRate,
			LearningRateDecay: settings.LearningRateDecay,
			TargetAccuracy:    settings.TargetAccuracy,
			SkipStopping:      settings.SkipStopping,
		}, net, trainSet, testSet, rng)
	}
	if err != nil {
		return nil, err
	}

	orch.results, err = NewResultsWriter(settings.OutputDir, runID)
	if err != nil {
		return nil, err
	}

	return orch, nil
}

func buildFederatedTrainer(logger hclog.Logger, eventBus *events.EventBus, settings config.Settings,
	net *nn.Network, trainSet *mnist.Dataset, testSet *mnist.Dataset, rng *rand.Rand) (*federated.Trainer, error) {
	var partitions [][]int
	var err error
	if settings.IID {
		partitions, err = mnist.SplitIID(trainSet.Len(), settings.NumUsers, rng)
	} else {
		partitions, err = mnist.SplitNonIID(trainSet.Labels, settings.NumUsers, mnist.DefaultShardsPerUser, rng)
	}
	if err != nil {
		return nil, fmt.Errorf("partitioning dataset: %w", err)
	}

	deviceSettings := model.EdgeDeviceSettings{
		Epochs:            settings.NumLocalEpochs,
		BatchSize:         settings.NumLocalBatch,
		LearningRate:      settings.LearningRate,
		LearningRateDecay: settings.LearningRateDecay,
	}

	devices := make([]*federated.EdgeDevice, len(partitions))
	for i, partition := range partitions {
		device, err := federated.NewEdgeDevice(i, trainSet.Subset(partition), deviceSettings,
			nn.DefaultLayerSizes, settings.Seed+int64(i)+1, logger)
		if err != nil {
			return nil, err
		}
		devices[i] = device
	}

	logger.Info(fmt.Sprintf("Prepared %d edge devices (iid=%t), %d samples total",
		len(devices), settings.IID, trainSet.Len()))

	return federated.NewTrainer(logger, eventBus, federated.TrainerConfig{
		GlobalRounds:      settings.NumGlobalEpochs,
		UserFraction:      settings.UserFraction,
		Distributed:       settings.Distributed,
		LearningRate:      settings.LearningRate,
		LearningRateDecay: settings.LearningRateDecay,
		TargetAccuracy:    settings.TargetAccuracy,
		SkipStopping:      settings.SkipStopping,
	}, net, devices, testSet, rng)
}

func (o *Orchestrator) RunID() string {
	return o.runID
}

// Progress returns a snapshot of the run state for API clients.
func (o *Orchestrator) Progress() model.ProgressSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return model.ProgressSnapshot{
		RunID:      o.runID,
		Status:     o.status,
		Round:      o.round,
		Losses:     append([]float64(nil), o.losses...),
		Accuracies: append([]float64(nil), o.accuracies...),
	}
}

// Run executes the training run to completion. It blocks until the
// trainer finishes or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunResult, error) {
	started := time.Now()
	o.logger.Info(fmt.Sprintf("Starting run (federated=%t, distributed=%t, results: %s)",
		o.settings.Federated, o.settings.Distributed, o.results.Path()))

	// Validate the schedule before anything is started, so a bad schedule
	// leaves no goroutine or subscription behind.
	if o.settings.CheckpointSchedule != "" {
		if _, err := o.cronScheduler.AddFunc(o.settings.CheckpointSchedule, o.saveCheckpoint); err != nil {
			return nil, fmt.Errorf("invalid checkpoint schedule %q: %w", o.settings.CheckpointSchedule, err)
		}
	}

	roundEvents := make(chan events.Event)
	o.eventBus.Subscribe(events.RoundCompletedEventType, roundEvents)

	collectorDone := make(chan struct{})
	go o.collectRounds(roundEvents, collectorDone)

	if o.settings.CheckpointSchedule != "" {
		o.cronScheduler.Start()
	}

	result, runErr := o.runner.Run(ctx)

	// Wait out any in-flight scheduled checkpoint so the final write below
	// never overlaps it.
	<-o.cronScheduler.Stop().Done()
	close(collectorDone)

	o.mu.Lock()
	switch {
	case runErr == nil:
		o.status = model.RunStatusFinished
	case ctx.Err() != nil:
		o.status = model.RunStatusCancelled
	default:
		o.status = model.RunStatusFailed
	}
	o.mu.Unlock()

	if result != nil {
		result.RunID = o.runID
		result.Duration = time.Since(started)

		o.saveCheckpoint()
		o.logger.Info(fmt.Sprintf("Run finished after %d rounds in %s: loss %.4f, accuracy %.4f (%s)",
			result.Rounds, result.Duration.Round(time.Second), result.FinalLoss, result.FinalAccuracy,
			result.StopReason))
	}

	if runErr != nil {
		return result, fmt.Errorf("run %s: %w", o.runID, runErr)
	}
	return result, nil
}

// collectRounds consumes round events: it records progress, appends to
// the results file, and periodically refreshes the accuracy projection.
func (o *Orchestrator) collectRounds(roundEvents <-chan events.Event, done <-chan struct{}) {
	for {
		select {
		case event := <-roundEvents:
			round, ok := event.Data.(events.RoundCompletedEvent)
			if !ok {
				o.logger.Error("Invalid round event data")
				continue
			}

			o.mu.Lock()
			o.round = round.Round
			o.losses = append(o.losses, round.Loss)
			o.accuracies = append(o.accuracies, round.Accuracy)
			accuracies := o.accuracies
			o.mu.Unlock()

			if err := o.results.Append(round.Round, round.Loss, round.Accuracy, round.LearningRate); err != nil {
				o.logger.Error(fmt.Sprintf("Error writing results: %s", err.Error()))
			}

			if round.Round%predictionInterval == 0 && len(accuracies) >= predictionMinSamples {
				o.logPrediction(accuracies, round.Round)
			}
		case <-done:
			return
		}
	}
}

func (o *Orchestrator) logPrediction(accuracies []float64, round int) {
	prediction, err := performance.NewPerformancePrediction(accuracies,
		performance.LogarithmicRegressionPredictionType, 0)
	if err != nil {
		o.logger.Error(fmt.Sprintf("Error fitting accuracy projection: %s", err.Error()))
		return
	}

	o.logger.Info(fmt.Sprintf("Accuracy projection: %s", prediction.PrintPrediction()))

	if o.settings.TargetAccuracy > 0 {
		predictedRound := prediction.PredictRoundForAccuracy(o.settings.TargetAccuracy)
		if predictedRound > round {
			o.logger.Info(fmt.Sprintf("Predicted round for accuracy %.4f: %d",
				o.settings.TargetAccuracy, predictedRound))
		}
	}
}

func (o *Orchestrator) saveCheckpoint() {
	params, round := o.runner.Snapshot()
	if round == 0 {
		return
	}

	// The trainer owns the live network and updates its weights
	// concurrently, so the snapshot is rebuilt from shape alone.
	snapshot, err := nn.New(o.net.LayerSizes(), rand.New(rand.NewSource(0)))
	if err != nil {
		o.logger.Error(fmt.Sprintf("Error snapshotting model: %s", err.Error()))
		return
	}
	if err := snapshot.SetParameters(params); err != nil {
		o.logger.Error(fmt.Sprintf("Error snapshotting model: %s", err.Error()))
		return
	}

	path := filepath.Join(o.settings.OutputDir, fmt.Sprintf("model_%s.ckpt", o.runID))
	if err := os.MkdirAll(o.settings.OutputDir, 0755); err != nil {
		o.logger.Error(fmt.Sprintf("Error creating output dir: %s", err.Error()))
		return
	}
	if err := nn.SaveCheckpoint(path, snapshot, round, o.runID); err != nil {
		o.logger.Error(fmt.Sprintf("Error saving checkpoint: %s", err.Error()))
		return
	}

	o.logger.Info(fmt.Sprintf("Checkpoint saved at round %d: %s", round, path))

	o.eventBus.Publish(events.Event{
		Type:      events.CheckpointSavedEventType,
		Timestamp: time.Now(),
		Data: events.CheckpointSavedEvent{
			Path:  path,
			Round: round,
		},
	})
}
