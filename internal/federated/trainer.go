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

// TrainerConfig controls the global federated loop.
type TrainerConfig struct {
	GlobalRounds      int
	UserFraction      float64
	Distributed       bool
	LearningRate      float64
	LearningRateDecay float64
	TargetAccuracy    float64
	SkipStopping      bool
}

// Trainer runs federated averaging over a set of edge devices.
type Trainer struct {
	logger   hclog.Logger
	eventBus *events.EventBus
	config   TrainerConfig
	devices  []*EdgeDevice
	testSet  *mnist.Dataset
	stopper  *ConvergenceDetector
	rng      *rand.Rand

	mu     sync.Mutex
	net    *nn.Network
	round  int
	params []float64
}

func NewTrainer(logger hclog.Logger, eventBus *events.EventBus, config TrainerConfig,
	net *nn.Network, devices []*EdgeDevice, testSet *mnist.Dataset, rng *rand.Rand) (*Trainer, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("no devices")
	}

	var stopper *ConvergenceDetector
	if !config.SkipStopping {
		stopper = NewConvergenceDetector()
	}

	return &Trainer{
		logger:   logger,
		eventBus: eventBus,
		config:   config,
		devices:  devices,
		testSet:  testSet,
		stopper:  stopper,
		rng:      rng,
		net:      net,
		params:   net.Parameters(),
	}, nil
}

// Snapshot returns a copy of the current global parameters and the number
// of finished rounds. Safe to call from the checkpoint scheduler while the
// loop is running.
func (t *Trainer) Snapshot() ([]float64, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]float64(nil), t.params...), t.round
}

// Run drives the global rounds until the budget is exhausted, the
// accuracy converges, the target accuracy is reached, or the context is
// cancelled.
func (t *Trainer) Run(ctx context.Context) (*model.RunResult, error) {
	accuracies := make([]float64, 0, t.config.GlobalRounds)
	lastLoss, lastAccuracy := 0.0, 0.0
	stopReason := model.StopReasonRoundsExhausted
	rounds := 0

	for round := 1; round <= t.config.GlobalRounds; round++ {
		select {
		case <-ctx.Done():
			stopReason = model.StopReasonCancelled
			return t.finish(rounds, lastLoss, lastAccuracy, stopReason), ctx.Err()
		default:
		}

		learningRate := t.config.LearningRate * math.Pow(t.config.LearningRateDecay, float64(round-1))

		sampled, err := SampleDevices(len(t.devices), t.config.UserFraction, t.rng)
		if err != nil {
			return nil, err
		}

		results, err := t.trainRound(ctx, sampled, learningRate)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}

		averaged, err := Average(results)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}

		t.mu.Lock()
		if err := t.net.SetParameters(averaged); err != nil {
			t.mu.Unlock()
			return nil, err
		}
		t.params = averaged
		t.round = round
		t.mu.Unlock()

		trainLoss := WeightedLoss(results)
		testLoss, accuracy, err := t.net.Evaluate(t.testSet)
		if err != nil {
			return nil, fmt.Errorf("round %d evaluation: %w", round, err)
		}

		rounds = round
		lastLoss, lastAccuracy = testLoss, accuracy
		accuracies = append(accuracies, accuracy)

		t.logger.Info(fmt.Sprintf("Round %3d | sampled %d/%d | train loss %.4f | test loss %.4f | accuracy %.4f",
			round, len(sampled), len(t.devices), trainLoss, testLoss, accuracy))

		t.eventBus.Publish(events.Event{
			Type:      events.RoundCompletedEventType,
			Timestamp: time.Now(),
			Data: events.RoundCompletedEvent{
				Round:          round,
				Loss:           testLoss,
				Accuracy:       accuracy,
				LearningRate:   learningRate,
				SampledDevices: sampled,
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

	return t.finish(rounds, lastLoss, lastAccuracy, stopReason), nil
}

// trainRound fans the global model out to the sampled devices. With
// Distributed set, the devices train concurrently; otherwise they run one
// after another, matching the original single-process mode.
func (t *Trainer) trainRound(ctx context.Context, sampled []int, learningRate float64) ([]model.DeviceResult, error) {
	t.mu.Lock()
	globalParams := append([]float64(nil), t.params...)
	t.mu.Unlock()

	if !t.config.Distributed {
		results := make([]model.DeviceResult, 0, len(sampled))
		for _, id := range sampled {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result, err := t.devices[id].TrainRound(globalParams, learningRate)
			if err != nil {
				return nil, err
			}
			results = append(results, result)
		}
		return results, nil
	}

	type outcome struct {
		result model.DeviceResult
		err    error
	}

	outcomes := make([]outcome, len(sampled))
	var wg sync.WaitGroup
	for i, id := range sampled {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			result, err := t.devices[id].TrainRound(globalParams, learningRate)
			outcomes[i] = outcome{result: result, err: err}
		}(i, id)
	}
	wg.Wait()

	results := make([]model.DeviceResult, 0, len(sampled))
	for _, o := range outcomes {
		if o.err != nil {
			return nil, o.err
		}
		results = append(results, o.result)
	}
	return results, nil
}

func (t *Trainer) finish(rounds int, loss float64, accuracy float64, stopReason string) *model.RunResult {
	result := &model.RunResult{
		Rounds:        rounds,
		FinalLoss:     loss,
		FinalAccuracy: accuracy,
		StopReason:    stopReason,
	}

	t.eventBus.Publish(events.Event{
		Type:      events.RunFinishedEventType,
		Timestamp: time.Now(),
		Data: events.RunFinishedEvent{
			StopReason:    stopReason,
			Rounds:        rounds,
			FinalLoss:     loss,
			FinalAccuracy: accuracy,
		},
	})

	return result
}
