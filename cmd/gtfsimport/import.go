package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/gtfsimport"
	"tidbyt.dev/gtfsimport/downloader"
)

var importCmd = &cobra.Command{
	Use:   "import <file.zip|url>",
	Short: "Imports routes and trips from a GTFS archive",
	Args:  cobra.ExactArgs(1),
	RunE:  importArchive,
}

var headers []string

func init() {
	importCmd.Flags().StringSliceVarP(
		&headers,
		"header",
		"",
		[]string{},
		"HTTP header used when downloading, on form <key>:<value>",
	)
}

func importArchive(cmd *cobra.Command, args []string) error {
	source := args[0]

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var summary *gtfsimport.Summary
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		h, err := parseHeaders(headers)
		if err != nil {
			return fmt.Errorf("invalid header: %w", err)
		}

		if dir := a.cfg.Ingest.DownloadCacheDir; dir != "" {
			fs, err := downloader.NewFilesystem(dir)
			if err != nil {
				return fmt.Errorf("creating download cache: %w", err)
			}
			fs.Logger = a.logger
			a.importer.Downloader = fs
			a.importer.DownloadCacheTTL = a.cfg.Ingest.DownloadCacheTTL
		}

		summary, err = a.importer.IngestURL(cmd.Context(), source, h)
		if err != nil {
			return fmt.Errorf("importing %s (%s): %w", source, gtfsimport.ErrorKind(err), err)
		}
	} else {
		buf, err := os.ReadFile(source)
		if err != nil {
			return err
		}
		summary, err = a.importer.IngestUpload(cmd.Context(), filepath.Base(source), buf)
		if err != nil {
			return fmt.Errorf("importing %s (%s): %w", source, gtfsimport.ErrorKind(err), err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"imported %d routes and %d trips in %s (import %s)\n",
		summary.Routes, summary.Trips, summary.Duration.Round(time.Millisecond), summary.ID,
	)

	return nil
}
