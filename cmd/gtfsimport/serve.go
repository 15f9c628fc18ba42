package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/gtfsimport/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the upload form and reports over HTTP",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

var accessLog bool

func init() {
	serveCmd.Flags().BoolVarP(&accessLog, "access-log", "", true, "Log every HTTP request to stdout")
}

func serve(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := server.Config{
		Logger:         a.logger,
		MaxUploadSize:  a.cfg.Server.MaxUploadMB << 20,
		RequestTimeout: a.cfg.Server.RequestTimeout,
	}
	if accessLog {
		cfg.AccessLog = os.Stdout
	}
	srv := server.New(a.importer, a.views, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		errs <- srv.Listen(a.cfg.Server.Addr)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return nil
}
