package server

import (
	"encoding/json"
	"io"

	"github.com/hitzht/federated-faceid/internal/config"
)

func toJSON(i interface{}, w io.Writer) error {
	e := json.NewEncoder(w)
	return e.Encode(i)
}

func fromJSON(i interface{}, r io.Reader) error {
	d := json.NewDecoder(r)
	return d.Decode(i)
}

// StartRunRequest is the POST /runs body. Every field is optional; unset
// fields keep the preset defaults.
type StartRunRequest struct {
	Settings config.Settings `json:"settings"`
}

// StartRunResponse echoes the assigned run ID.
type StartRunResponse struct {
	RunID string `json:"runId"`
}
