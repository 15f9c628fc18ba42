package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tidbyt.dev/gtfsimport"
	"tidbyt.dev/gtfsimport/config"
	"tidbyt.dev/gtfsimport/storage"
)

var rootCmd = &cobra.Command{
	Use:          "gtfsimport",
	Short:        "GTFS routes and trips importer",
	Long:         "Loads routes.txt and trips.txt from GTFS archives and reports on them",
	SilenceUsage: true,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(headsignsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Everything a command needs, built from config and flags.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	storage  storage.Storage
	importer *gtfsimport.Importer
	views    *gtfsimport.Views
}

func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadWithFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger := cfg.Log.Logger(os.Stderr)
	slog.SetDefault(logger)

	s, err := cfg.Storage.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}

	views := gtfsimport.NewViews(s, cfg.JoinMode(), cfg.Cache.Size, cfg.Cache.TTL)

	importer := gtfsimport.NewImporter(s)
	importer.Logger = logger
	importer.DownloadTimeout = cfg.Ingest.DownloadTimeout
	importer.DownloadMaxSize = cfg.Ingest.DownloadMaxMB << 20
	importer.AllowNestedMembers = cfg.Ingest.AllowNestedMembers
	importer.AfterCommit = func(*gtfsimport.Summary) {
		views.Purge()
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		storage:  s,
		importer: importer,
		views:    views,
	}, nil
}

func (a *app) Close() {
	if err := a.storage.Close(); err != nil {
		a.logger.Warn("closing storage", "err", err)
	}
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}
