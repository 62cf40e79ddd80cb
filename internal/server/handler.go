package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/hitzht/federated-faceid/internal/config"
	"github.com/hitzht/federated-faceid/internal/events"
	"github.com/hitzht/federated-faceid/internal/mnist"
	"github.com/hitzht/federated-faceid/internal/orchestrator"
)

type runEntry struct {
	orch   *orchestrator.Orchestrator
	cancel context.CancelFunc
}

// Handler exposes training runs over HTTP. The MNIST data is loaded once
// and shared across every run started through the API.
type Handler struct {
	logger   hclog.Logger
	trainSet *mnist.Dataset
	testSet  *mnist.Dataset

	mu   sync.Mutex
	runs map[string]*runEntry
}

func NewHandler(logger hclog.Logger, trainSet *mnist.Dataset, testSet *mnist.Dataset) *Handler {
	return &Handler{
		logger:   logger,
		trainSet: trainSet,
		testSet:  testSet,
		runs:     map[string]*runEntry{},
	}
}

// Router returns the API routes.
func (handler *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/runs", handler.StartRun).Methods(http.MethodPost)
	router.HandleFunc("/runs/{runId}", handler.GetRun).Methods(http.MethodGet)
	router.HandleFunc("/runs/{runId}", handler.StopRun).Methods(http.MethodDelete)
	return router
}

func (handler *Handler) StartRun(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	request := &StartRunRequest{Settings: config.Default()}
	if err := fromJSON(request, r.Body); err != nil {
		handler.logger.Error("Error decoding start request", "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		toJSON("invalid request body", rw)
		return
	}

	settings := request.Settings
	if settings.RunID == "" {
		settings.RunID = uuid.New().String()
	}

	// Each run gets its own event bus so progress events never cross
	// between concurrent runs.
	orch, err := orchestrator.NewWithData(handler.logger, events.NewEventBus(), settings,
		handler.trainSet, handler.testSet)
	if err != nil {
		handler.logger.Error("Error starting run", "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		toJSON(err.Error(), rw)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	handler.mu.Lock()
	handler.runs[orch.RunID()] = &runEntry{orch: orch, cancel: cancel}
	handler.mu.Unlock()

	handler.logger.Info(fmt.Sprintf("Starting run %s (federated=%t, users=%d, fraction=%.2f)",
		orch.RunID(), settings.Federated, settings.NumUsers, settings.UserFraction))

	go func() {
		defer cancel()
		if _, err := orch.Run(ctx); err != nil {
			handler.logger.Error("Run ended with error", "error", err)
		}
	}()

	rw.WriteHeader(http.StatusOK)
	toJSON(StartRunResponse{RunID: orch.RunID()}, rw)
}

func (handler *Handler) GetRun(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runID := getURLParameter(r, "runId")

	handler.mu.Lock()
	entry := handler.runs[runID]
	handler.mu.Unlock()

	if entry == nil {
		rw.WriteHeader(http.StatusNotFound)
		toJSON("no run with the given ID", rw)
		return
	}

	rw.WriteHeader(http.StatusOK)
	toJSON(entry.orch.Progress(), rw)
}

func (handler *Handler) StopRun(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runID := getURLParameter(r, "runId")

	handler.logger.Info(fmt.Sprintf("Stopping run: %s", runID))

	handler.mu.Lock()
	entry := handler.runs[runID]
	handler.mu.Unlock()

	if entry == nil {
		rw.WriteHeader(http.StatusNotFound)
		toJSON("no run with the given ID", rw)
		return
	}

	entry.cancel()
	rw.WriteHeader(http.StatusOK)
	toJSON(runID, rw)
}

func getURLParameter(r *http.Request, parameter string) string {
	vars := mux.Vars(r)
	return vars[parameter]
}
