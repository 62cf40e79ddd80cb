package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	settings := Default()
	require.NoError(t, settings.Validate())

	assert.True(t, settings.Federated)
	assert.Equal(t, 100, settings.NumUsers)
	assert.InDelta(t, 0.1, settings.UserFraction, 1e-12)
	assert.Equal(t, 400, settings.NumGlobalEpochs)
}

func TestLoadPresetOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preset.yaml")
	preset := []byte(`
federated: false
skip_stopping: true
num_global_epochs: 20
num_global_batch: 32
learning_rate: 0.05
`)
	require.NoError(t, os.WriteFile(path, preset, 0o644))

	settings, err := LoadPreset(path)
	require.NoError(t, err)

	assert.False(t, settings.Federated)
	assert.True(t, settings.SkipStopping)
	assert.Equal(t, 20, settings.NumGlobalEpochs)
	assert.Equal(t, 32, settings.NumGlobalBatch)
	assert.InDelta(t, 0.05, settings.LearningRate, 1e-12)

	// Untouched keys keep their defaults.
	assert.Equal(t, 100, settings.NumUsers)
	assert.InDelta(t, 0.99, settings.LearningRateDecay, 1e-12)
}

func TestLoadPresetMissingFile(t *testing.T) {
	_, err := LoadPreset(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadPresetBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_users: [not a number"), 0o644))

	_, err := LoadPreset(path)
	assert.Error(t, err)
}

func TestValidateFederated(t *testing.T) {
	settings := Default()
	settings.NumUsers = 0
	assert.ErrorContains(t, settings.Validate(), "num_users")

	settings = Default()
	settings.UserFraction = 1.5
	assert.ErrorContains(t, settings.Validate(), "user_fraction")

	settings = Default()
	settings.NumLocalEpochs = 0
	assert.ErrorContains(t, settings.Validate(), "num_local_epochs")

	settings = Default()
	settings.NumLocalBatch = -1
	assert.ErrorContains(t, settings.Validate(), "num_local_batch")
}

func TestValidateBaseline(t *testing.T) {
	settings := Default()
	settings.Federated = false
	settings.NumUsers = 0 // irrelevant for the baseline
	require.NoError(t, settings.Validate())

	settings.NumGlobalBatch = 0
	assert.ErrorContains(t, settings.Validate(), "num_global_batch")
}

func TestValidateCommon(t *testing.T) {
	settings := Default()
	settings.NumGlobalEpochs = 0
	assert.ErrorContains(t, settings.Validate(), "num_global_epochs")

	settings = Default()
	settings.LearningRate = 0
	assert.ErrorContains(t, settings.Validate(), "learning_rate")

	settings = Default()
	settings.LearningRateDecay = 1.2
	assert.ErrorContains(t, settings.Validate(), "learning_rate_decay")

	settings = Default()
	settings.TargetAccuracy = 2
	assert.ErrorContains(t, settings.Validate(), "target_accuracy")
}
