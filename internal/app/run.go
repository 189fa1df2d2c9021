package app

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/config"
	"analysis-engine/internal/pipeline"
)

// shutdownTimeout bounds the wait for the server and running executions
const shutdownTimeout = 30 * time.Second

// Run is the main entry point for the application. With -job it runs one
// job definition, prints the execution summary to stdout and exits;
// otherwise it serves the HTTP API until SIGINT or SIGTERM.
func Run(args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("analysis-engine", flag.ContinueOnError)
	jobFile := flags.String("job", "", "Run the job definition in this file once and print its summary")
	timeout := flags.Duration("timeout", 0, "Cancel a -job run after this long (0 waits forever)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger, err := NewLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	logging.SetGlobalLogger(logger)
	defer logging.MustSync(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	if *jobFile != "" {
		return app.RunOnce(ctx, *jobFile, *timeout, stdout)
	}
	return app.Serve(ctx)
}

// NewLogger builds the process logger from the configuration
func NewLogger(cfg *config.Config, out io.Writer) (logging.Logger, error) {
	format := logging.FormatJSON
	if cfg.LogFormat == string(logging.FormatConsole) {
		format = logging.FormatConsole
	}
	return logging.NewZapLogger(logging.LogConfig{
		Level:      logging.ParseLevel(cfg.LogLevel),
		Format:     format,
		Output:     out,
		TimeFormat: time.RFC3339,
		Name:       "analysis-engine",
	})
}

// RunOnce submits the definition in path, waits for the execution and
// writes its summary as JSON. It fails when the execution does not
// succeed.
func (app *App) RunOnce(ctx context.Context, path string, timeout time.Duration, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read job definition: %w", err)
	}

	exec, err := app.Engine.SubmitJSON(ctx, data)
	if err != nil {
		return err
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := exec.Await(waitCtx); err != nil {
		app.Logger.Warn("Cancelling execution", logging.String("execution_id", exec.ID()), logging.Err(err))
		exec.Cancel()
		<-exec.Done()
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pipeline.Summarize(exec)); err != nil {
		return err
	}

	if !exec.IsSuccessful() {
		return fmt.Errorf("execution %s finished with status %s", exec.ID(), exec.Status())
	}
	return nil
}

// Serve runs the HTTP API until ctx ends, then shuts down the server and
// the engine
func (app *App) Serve(ctx context.Context) error {
	srv := app.RunServer()
	errCh, err := srv.Start()
	if err != nil {
		app.Logger.Error("Server failed to start", err)
		return err
	}
	app.Logger.Info("Server started", logging.String("addr", srv.Addr()))

	var serveErr error
	select {
	case <-ctx.Done():
		app.Logger.Info("Shutting down server...")
	case serveErr = <-errCh:
		app.Logger.Error("Server stopped unexpectedly", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn("Server forced to shutdown", logging.Err(err))
	}
	if err := app.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn("Engine forced to shutdown", logging.Err(err))
	}

	app.Logger.Info("Server exited")
	return serveErr
}
