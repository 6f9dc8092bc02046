package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iwinterknight/vectordb/internal/config"
	"github.com/iwinterknight/vectordb/internal/vectordb/app"
	"github.com/iwinterknight/vectordb/internal/vectordb/httpapi"
)

func newServeCmd() *cobra.Command {
	var (
		dataDir string
		addr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the vector database HTTP server",
		Long: `Start the HTTP server, bootstrapping the repository from any
existing snapshot and write-ahead log in the data directory, then
restoring every library's persisted index before accepting requests.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), dataDir, addr)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory holding the snapshot and WAL (overrides config/env)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config/env)")

	return cmd
}

func runServe(parent context.Context, dataDirFlag, addrFlag string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dataDirFlag != "" {
		cfg.Data.Dir = dataDirFlag
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}

	logger := slog.Default()

	appCtx, err := app.New(app.Options{
		DataDir:            cfg.Data.Dir,
		Logger:             logger,
		EphemeralCacheSize: cfg.Indexing.EphemeralCacheSize,
	})
	if err != nil {
		return fmt.Errorf("initialize vector database: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewRouter(appCtx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Server.Addr), slog.String("data_dir", cfg.Data.Dir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	if _, err := appCtx.Snapshot(); err != nil {
		logger.Error("final snapshot failed", slog.String("error", err.Error()))
	}

	return <-errCh
}
