package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
)

// StartHTTPServer serves the API until SIGINT/SIGTERM, then shuts down
// gracefully with a 30 second drain.
func StartHTTPServer(logger hclog.Logger, port int, defaultRouter http.Handler) {
	server := &http.Server{
		Addr:     fmt.Sprintf(":%d", port),
		Handler:  defaultRouter,
		ErrorLog: logger.StandardLogger(&hclog.StandardLoggerOptions{}),
	}

	go func() {
		logger.Info(fmt.Sprintf("Starting server on port: %d", port))

		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logger.Error("Error starting server", "error", err)
			os.Exit(1)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	sig := <-c
	logger.Info(fmt.Sprintf("Got signal: %s", sig))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}
