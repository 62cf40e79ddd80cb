package main

import (
	"io"
	"os"
	"strconv"

	"github.com/hashicorp/go-hclog"

	"github.com/hitzht/federated-faceid/internal/mnist"
	"github.com/hitzht/federated-faceid/internal/server"
)

const defaultPort = 8080

func main() {
	_ = os.Mkdir("log", 0755)
	logFile, err := os.OpenFile("log/server.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := logFile.Close(); err != nil {
			panic(err)
		}
	}()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "train-api",
		Level:  hclog.LevelFromString("DEBUG"),
		Output: io.MultiWriter(os.Stdout, logFile),
	})

	dataDir := "data/mnist"
	port := defaultPort
	if len(os.Args) >= 2 {
		dataDir = os.Args[1]
	}
	if len(os.Args) >= 3 {
		if p, err := strconv.Atoi(os.Args[2]); err == nil {
			port = p
		}
	}

	trainSet, err := mnist.LoadTraining(dataDir)
	if err != nil {
		logger.Error("Error loading training data", "error", err)
		return
	}
	testSet, err := mnist.LoadTest(dataDir)
	if err != nil {
		logger.Error("Error loading test data", "error", err)
		return
	}

	logger.Info("MNIST loaded", "train", trainSet.Len(), "test", testSet.Len())

	handler := server.NewHandler(logger, trainSet, testSet)

	server.StartHTTPServer(logger, port, handler.Router())
}
