package nn

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Checkpoint is the on-disk snapshot of a model mid-run.
type Checkpoint struct {
	LayerSizes []int     `cbor:"layerSizes"`
	Params     []float64 `cbor:"params"`
	Round      int       `cbor:"round"`
	RunID      string    `cbor:"runId,omitempty"`
}

// SaveCheckpoint writes the network parameters to path. The write goes
// through a temp file and rename so a crash never leaves a torn
// checkpoint behind.
func SaveCheckpoint(path string, net *Network, round int, runID string) error {
	checkpoint := Checkpoint{
		LayerSizes: net.LayerSizes(),
		Params:     net.Parameters(),
		Round:      round,
		RunID:      runID,
	}

	data, err := cbor.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming checkpoint: %w", err)
	}

	return nil
}

// LoadCheckpoint restores a network from a checkpoint file.
func LoadCheckpoint(path string) (*Network, *Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var checkpoint Checkpoint
	if err := cbor.Unmarshal(data, &checkpoint); err != nil {
		return nil, nil, fmt.Errorf("decoding checkpoint: %w", err)
	}

	// The init values are immediately overwritten, the rng source is
	// irrelevant here.
	net, err := New(checkpoint.LayerSizes, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, nil, err
	}
	if err := net.SetParameters(checkpoint.Params); err != nil {
		return nil, nil, err
	}

	return net, &checkpoint, nil
}
