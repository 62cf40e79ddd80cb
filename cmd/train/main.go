package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/hitzht/federated-faceid/internal/config"
	"github.com/hitzht/federated-faceid/internal/events"
	"github.com/hitzht/federated-faceid/internal/orchestrator"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var presetPath string
	flags := config.Default()

	cmd := &cobra.Command{
		Use:   "train_mnist",
		Short: "Train an MNIST classifier, federated or centralized",
		Long: "Runs the MNIST training experiment. By default a federated run: " +
			"the training set is partitioned across simulated edge devices, a " +
			"fraction of them is sampled every global round, and their locally " +
			"trained models are combined with federated averaging. With " +
			"--federated=false a centralized baseline is trained instead.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := config.Default()
			if presetPath != "" {
				loaded, err := config.LoadPreset(presetPath)
				if err != nil {
					return err
				}
				settings = loaded
			}
			applyChangedFlags(cmd, &settings, &flags)
			return run(settings)
		},
	}

	cmd.Flags().StringVar(&presetPath, "preset", "", "YAML preset file; flags override preset values")
	cmd.Flags().StringVar(&flags.RunID, "id", flags.RunID, "run identifier (default: random UUID)")
	cmd.Flags().BoolVar(&flags.SkipStopping, "skip_stopping", flags.SkipStopping, "disable early stopping")
	cmd.Flags().BoolVar(&flags.Distributed, "distributed", flags.Distributed, "train sampled devices concurrently")
	cmd.Flags().BoolVar(&flags.Federated, "federated", flags.Federated, "federated training (false: centralized baseline)")
	cmd.Flags().IntVar(&flags.NumUsers, "num_users", flags.NumUsers, "number of simulated federated clients")
	cmd.Flags().Float64Var(&flags.UserFraction, "user_fraction", flags.UserFraction, "fraction of clients sampled per round")
	cmd.Flags().BoolVar(&flags.IID, "iid", flags.IID, "IID data split (false: sort-by-label shards)")
	cmd.Flags().IntVar(&flags.NumGlobalEpochs, "num_global_epochs", flags.NumGlobalEpochs, "number of global rounds (or epochs when centralized)")
	cmd.Flags().IntVar(&flags.NumLocalEpochs, "num_local_epochs", flags.NumLocalEpochs, "local epochs per round")
	cmd.Flags().IntVar(&flags.NumLocalBatch, "num_local_batch", flags.NumLocalBatch, "batch size for local training")
	cmd.Flags().IntVar(&flags.NumGlobalBatch, "num_global_batch", flags.NumGlobalBatch, "batch size for centralized training")
	cmd.Flags().Float64Var(&flags.LearningRate, "learning_rate", flags.LearningRate, "initial SGD learning rate")
	cmd.Flags().Float64Var(&flags.LearningRateDecay, "learning_rate_decay", flags.LearningRateDecay, "per-round learning rate decay factor")
	cmd.Flags().Float64Var(&flags.TargetAccuracy, "target_accuracy", flags.TargetAccuracy, "stop once test accuracy reaches this value (0: off)")
	cmd.Flags().Int64Var(&flags.Seed, "seed", flags.Seed, "RNG seed")
	cmd.Flags().StringVar(&flags.DataDir, "data_dir", flags.DataDir, "directory with the MNIST idx files")
	cmd.Flags().StringVar(&flags.OutputDir, "output_dir", flags.OutputDir, "directory for results and checkpoints")

	return cmd
}

// applyChangedFlags copies only the flags the user actually set on top of
// the preset, so presets and flags compose the way the original shell
// scripts did.
func applyChangedFlags(cmd *cobra.Command, settings *config.Settings, flags *config.Settings) {
	set := map[string]func(){
		"id":                  func() { settings.RunID = flags.RunID },
		"skip_stopping":       func() { settings.SkipStopping = flags.SkipStopping },
		"distributed":         func() { settings.Distributed = flags.Distributed },
		"federated":           func() { settings.Federated = flags.Federated },
		"num_users":           func() { settings.NumUsers = flags.NumUsers },
		"user_fraction":       func() { settings.UserFraction = flags.UserFraction },
		"iid":                 func() { settings.IID = flags.IID },
		"num_global_epochs":   func() { settings.NumGlobalEpochs = flags.NumGlobalEpochs },
		"num_local_epochs":    func() { settings.NumLocalEpochs = flags.NumLocalEpochs },
		"num_local_batch":     func() { settings.NumLocalBatch = flags.NumLocalBatch },
		"num_global_batch":    func() { settings.NumGlobalBatch = flags.NumGlobalBatch },
		"learning_rate":       func() { settings.LearningRate = flags.LearningRate },
		"learning_rate_decay": func() { settings.LearningRateDecay = flags.LearningRateDecay },
		"target_accuracy":     func() { settings.TargetAccuracy = flags.TargetAccuracy },
		"seed":                func() { settings.Seed = flags.Seed },
		"data_dir":            func() { settings.DataDir = flags.DataDir },
		"output_dir":          func() { settings.OutputDir = flags.OutputDir },
	}
	for name, apply := range set {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}

func run(settings config.Settings) error {
	if err := os.MkdirAll("log", 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join("log", "run.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "train-mnist",
		Level:  hclog.LevelFromString("DEBUG"),
		Output: io.MultiWriter(os.Stdout, logFile),
	})

	eventBus := events.NewEventBus()

	orch, err := orchestrator.New(logger, eventBus, settings)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.Info(fmt.Sprintf("Got signal: %s, stopping run", sig))
		cancel()
	}()

	_, err = orch.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
