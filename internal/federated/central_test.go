package federated

import (
	"context"
	"math/rand"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzht/federated-faceid/internal/events"
	"github.com/hitzht/federated-faceid/internal/mnist"
	"github.com/hitzht/federated-faceid/internal/model"
	"github.com/hitzht/federated-faceid/internal/nn"
)

func newCentralizedTrainer(t *testing.T, config CentralizedConfig) *CentralizedTrainer {
	t.Helper()

	dataRNG := rand.New(rand.NewSource(21))
	trainSet := syntheticDataset(120, 6, 3, dataRNG)
	testSet := syntheticDataset(60, 6, 3, dataRNG)

	net, err := nn.New([]int{6, 12, 3}, rand.New(rand.NewSource(22)))
	require.NoError(t, err)

	trainer, err := NewCentralizedTrainer(hclog.NewNullLogger(), events.NewEventBus(), config,
		net, trainSet, testSet, rand.New(rand.NewSource(23)))
	require.NoError(t, err)
	return trainer
}

func TestCentralizedRunsAllEpochs(t *testing.T) {
	trainer := newCentralizedTrainer(t, CentralizedConfig{
		Epochs:            8,
		BatchSize:         16,
		LearningRate:      0.2,
		LearningRateDecay: 0.99,
		SkipStopping:      true,
	})

	result, err := trainer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, result.Rounds)
	assert.Equal(t, model.StopReasonRoundsExhausted, result.StopReason)
	assert.GreaterOrEqual(t, result.FinalAccuracy, 0.9)

	_, epoch := trainer.Snapshot()
	assert.Equal(t, 8, epoch)
}

func TestCentralizedRejectsEmptyTrainingSet(t *testing.T) {
	net, err := nn.New([]int{6, 12, 3}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	_, err = NewCentralizedTrainer(hclog.NewNullLogger(), events.NewEventBus(), CentralizedConfig{},
		net, &mnist.Dataset{}, &mnist.Dataset{}, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestCentralizedCancelled(t *testing.T) {
	trainer := newCentralizedTrainer(t, CentralizedConfig{
		Epochs:       10,
		BatchSize:    16,
		LearningRate: 0.2,
		SkipStopping: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := trainer.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.StopReasonCancelled, result.StopReason)
}
