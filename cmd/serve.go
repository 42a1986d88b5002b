package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/circlez/internal/server"
	"github.com/cwbudde/circlez/internal/store"
)

var (
	serveAddr     string
	serveDataDir  string
	shutdownGrace time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Starts an HTTP server that runs approximation jobs in the background.
Jobs are created with POST /api/v1/jobs and can be followed through the web UI,
server-sent events or a websocket. Finished jobs are recorded only when
--data-dir is given.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Record finished jobs under this directory (empty = do not record)")
	serveCmd.Flags().DurationVar(&shutdownGrace, "shutdown-timeout", 30*time.Second, "Time allowed for running jobs to save on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	runStore, err := openStore(serveDataDir)
	if err != nil {
		return err
	}

	// A nil *FSStore must not become a non-nil store.Store
	var s *server.Server
	if runStore != nil {
		s = server.NewServer(serveAddr, store.Store(runStore))
	} else {
		s = server.NewServer(serveAddr, nil)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Received shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errCh
}
