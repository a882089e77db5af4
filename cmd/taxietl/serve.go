package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/TaxiETL/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept CSV uploads over HTTP and run the ETL for each",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		server := web.NewServer(a.service, a.cfg.Server, a.cfg.Input.DuplicatesPath)

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-cmd.Context().Done():
		}

		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := a.service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for runs to complete", "active", status.Active)
			if err := a.service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("runs did not complete in time", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		slog.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("host", "", "interface to bind (env SERVER_HOST)")
	serveCmd.Flags().String("port", "", "port to listen on (env SERVER_PORT)")

	bindFlags(serveCmd, map[string]string{
		"host": "SERVER_HOST",
		"port": "SERVER_PORT",
	})
}
