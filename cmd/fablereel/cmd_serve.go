package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fablereel/fablereel/internal/api"
)

var serveRoot string

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API",
		Long: `Serve an HTTP API exposing the state of the task store.

Endpoints:
  GET /healthz             liveness probe
  GET /units               known chapter units
  GET /units/{unit}/tasks  a unit's in-flight task records`,
		RunE: serveCommandE,
	}

	cmd.Flags().StringVar(&serveRoot, "root", ".", "Content root directory")

	return cmd
}

func serveCommandE(cmd *cobra.Command, args []string) error {
	a, err := setup(serveRoot)
	if err != nil {
		return err
	}
	defer a.close()

	handler := api.NewStatusHandler(a.store)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("status API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		a.logger.Info("shutting down", "signal", sig.String())
	case <-cmd.Context().Done():
		a.logger.Info("shutting down", "reason", "context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
