package app

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"template-service/internal/common/logging"
	"template-service/internal/config"
)

// Version is set at build time.
var Version = "dev"

// Run serves until SIGINT or SIGTERM. cfg must already be loaded and the
// global logger initialized.
func Run(cfg *config.Config) error {
	if err := cfg.ValidateServe(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	logging.Info("Starting template service",
		logging.Int("cpus", runtime.NumCPU()),
		logging.String("version", Version),
		logging.String("port", cfg.Port),
	)

	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}

	srv, _ := app.RunServer()
	if err := srv.Start(); err != nil {
		logging.Error("Server failed to start", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case err := <-srv.Errors():
		if err != nil {
			logging.Error("Server stopped unexpectedly", err)
			return err
		}
	}

	logging.Info("Shutting down server...")

	// Graceful shutdown: running jobs get their full timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.JobTimeout+writeGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server forced to shutdown", err)
		return err
	}
	if err := app.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Error during app shutdown", logging.Err(err))
	}

	logging.Info("Server exited")
	return nil
}
