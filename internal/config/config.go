// Package config holds the run settings that were previously scattered
// across shell preset scripts: every training hyperparameter and switch,
// loadable from a YAML preset and overridable from the command line.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the full configuration of a training run.
type Settings struct {
	RunID        string `yaml:"id" json:"id"`
	SkipStopping bool   `yaml:"skip_stopping" json:"skipStopping"`
	Distributed  bool   `yaml:"distributed" json:"distributed"`
	Federated    bool   `yaml:"federated" json:"federated"`

	NumUsers     int     `yaml:"num_users" json:"numUsers"`
	UserFraction float64 `yaml:"user_fraction" json:"userFraction"`
	IID          bool    `yaml:"iid" json:"iid"`

	NumGlobalEpochs int `yaml:"num_global_epochs" json:"numGlobalEpochs"`
	NumLocalEpochs  int `yaml:"num_local_epochs" json:"numLocalEpochs"`
	NumLocalBatch   int `yaml:"num_local_batch" json:"numLocalBatch"`
	NumGlobalBatch  int `yaml:"num_global_batch" json:"numGlobalBatch"`

	LearningRate      float64 `yaml:"learning_rate" json:"learningRate"`
	LearningRateDecay float64 `yaml:"learning_rate_decay" json:"learningRateDecay"`

	TargetAccuracy float64 `yaml:"target_accuracy" json:"targetAccuracy"`
	Seed           int64   `yaml:"seed" json:"seed"`

	DataDir   string `yaml:"data_dir" json:"dataDir"`
	OutputDir string `yaml:"output_dir" json:"outputDir"`

	CheckpointSchedule string `yaml:"checkpoint_schedule" json:"checkpointSchedule"`
}

// Default returns the settings of the standard federated MNIST
// experiment: 100 users, 10% sampled per round.
func Default() Settings {
	return Settings{
		Federated:          true,
		NumUsers:           100,
		UserFraction:       0.1,
		IID:                true,
		NumGlobalEpochs:    400,
		NumLocalEpochs:     5,
		NumLocalBatch:      10,
		NumGlobalBatch:     64,
		LearningRate:       0.15,
		LearningRateDecay:  0.99,
		TargetAccuracy:     0.0,
		Seed:               42,
		DataDir:            "data/mnist",
		OutputDir:          "results",
		CheckpointSchedule: "@every 2m",
	}
}

// LoadPreset reads a YAML preset on top of the defaults.
func LoadPreset(path string) (Settings, error) {
	settings := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("reading preset: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parsing preset %s: %w", path, err)
	}

	return settings, nil
}

// Validate rejects settings a run cannot start with.
func (s *Settings) Validate() error {
	if s.NumGlobalEpochs <= 0 {
		return fmt.Errorf("num_global_epochs must be positive, got %d", s.NumGlobalEpochs)
	}
	if s.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %g", s.LearningRate)
	}
	if s.LearningRateDecay <= 0 || s.LearningRateDecay > 1 {
		return fmt.Errorf("learning_rate_decay must be in (0, 1], got %g", s.LearningRateDecay)
	}
	if s.TargetAccuracy < 0 || s.TargetAccuracy > 1 {
		return fmt.Errorf("target_accuracy must be in [0, 1], got %g", s.TargetAccuracy)
	}

	if s.Federated {
		if s.NumUsers <= 0 {
			return fmt.Errorf("num_users must be positive, got %d", s.NumUsers)
		}
		if s.UserFraction <= 0 || s.UserFraction > 1 {
			return fmt.Errorf("user_fraction must be in (0, 1], got %g", s.UserFraction)
		}
		if s.NumLocalEpochs <= 0 {
			return fmt.Errorf("num_local_epochs must be positive, got %d", s.NumLocalEpochs)
		}
		if s.NumLocalBatch <= 0 {
			return fmt.Errorf("num_local_batch must be positive, got %d", s.NumLocalBatch)
		}
	} else {
		if s.NumGlobalBatch <= 0 {
			return fmt.Errorf("num_global_batch must be positive, got %d", s.NumGlobalBatch)
		}
	}

	return nil
}
