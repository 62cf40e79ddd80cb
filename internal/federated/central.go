package federated

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hitzht/federated-faceid/internal/events"
	"github.com/hitzht/federated-faceid/internal/mnist"
	"github.com/hitzht/federated-faceid/internal/model"
	"github.com/hitzht/federated-faceid/internal/nn"
)

// CentralizedConfig controls the non-federated baseline: one model, all
// of the data, plain mini-batch SGD.
type CentralizedConfig struct {
	Epochs            int
	BatchSize         int
	LearningRate      float64
	LearningRateDecay float64
	TargetAccuracy    float64
	SkipStopping      bool
}

// CentralizedTrainer is the baseline counterpart of Trainer. It reports
// one RoundCompleted event per epoch so the orchestrator can treat both
// modes uniformly.
type CentralizedTrainer struct {
	logger   hclog.Logger
	eventBus *events.EventBus
	config   CentralizedConfig
	trainSet *mnist.Dataset
	testSet  *mnist.Dataset
	stopper  *ConvergenceDetector
	rng      *rand.Rand

	mu    sync.Mutex
	net   *nn.Network
	epoch int
}

func NewCentralizedTrainer(logger hclog.Logger, eventBus *events.EventBus, config CentralizedConfig,
	net *nn.Network, trainSet *mnist.Dataset, testSet *mnist.Dataset, rng *rand.Rand) (*CentralizedTrainer, error) {
	if trainSet.Len() == 0 {
		return nil, fmt.Errorf("empty training set")
	}

	var stopper *ConvergenceDetector
	if !config.SkipStopping {
		stopper = NewConvergenceDetector()
	}

	return &CentralizedTrainer{
		logger:   logger,
		eventBus: eventBus,
		config:   config,
		trainSet: trainSet,
		testSet:  testSet,
		stopper:  stopper,
		rng:      rng,
		net:      net,
	}, nil
}

// Snapshot returns a copy of the current parameters and finished epochs.
func (t *CentralizedTrainer) Snapshot() ([]float64, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.net.Parameters(), t.epoch
}

func (t *CentralizedTrainer) Run(ctx context.Context) (*model.RunResult, error) {
	accuracies := make([]float64, 0, t.config.Epochs)
	lastLoss, lastAccuracy := 0.0, 0.0
	stopReason := model.StopReasonRoundsExhausted
	epochs := 0

	for epoch := 1; epoch <= t.config.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return t.finish(epochs, lastLoss, lastAccuracy, model.StopReasonCancelled), ctx.Err()
		default:
		}

		learningRate := t.config.LearningRate * math.Pow(t.config.LearningRateDecay, float64(epoch-1))

		t.mu.Lock()
		trainLoss, err := t.net.TrainEpoch(t.trainSet, t.config.BatchSize, learningRate, t.rng)
		if err != nil {
			t.mu.Unlock()
			return nil, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		t.epoch = epoch
		t.mu.Unlock()

		testLoss, accuracy, err := t.net.Evaluate(t.testSet)
		if err != nil {
			return nil, fmt.Errorf("epoch %d evaluation: %w", epoch, err)
		}

		epochs = epoch
		lastLoss, lastAccuracy = testLoss, accuracy
		accuracies = append(accuracies, accuracy)

		t.logger.Info(fmt.Sprintf("Epoch %3d | train loss %.4f | test loss %.4f | accuracy %.4f",
			epoch, trainLoss, testLoss, accuracy))

		t.eventBus.Publish(events.Event{
			Type:      events.RoundCompletedEventType,
			Timestamp: time.Now(),
			Data: events.RoundCompletedEvent{
				Round:        epoch,
				Loss:         testLoss,
				Accuracy:     accuracy,
				LearningRate: learningRate,
			},
		})

		if t.config.TargetAccuracy > 0 && accuracy >= t.config.TargetAccuracy {
			t.logger.Info(fmt.Sprintf("Target accuracy %.4f reached", t.config.TargetAccuracy))
			stopReason = model.StopReasonTargetAccuracy
			break
		}

		if t.stopper != nil && t.stopper.Converged(accuracies) {
			t.logger.Info("Accuracy has converged, stopping early")
			stopReason = model.StopReasonConverged
			break
		}
	}

	return t.finish(epochs, lastLoss, lastAccuracy, stopReason), nil
}

func (t *CentralizedTrainer) finish(epochs int, loss float64, accuracy float64, stopReason string) *model.RunResult {
	result := &model.RunResult{
		Rounds:        epochs,
		FinalLoss:     loss,
		FinalAccuracy: accuracy,
		StopReason:    stopReason,
	}

	t.eventBus.Publish(events.Event{
		Type:      events.RunFinishedEventType,
		Timestamp: time.Now(),
		Data: events.RunFinishedEvent{
			StopReason:    stopReason,
			Rounds:        epochs,
			FinalLoss:     loss,
			FinalAccuracy: accuracy,
		},
	})

	return result
}
