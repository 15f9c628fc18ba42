package main

import (
	"github.com/spf13/cobra"

	"tidbyt.dev/gtfsimport/render"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Lists every stored route row",
	Args:  cobra.NoArgs,
	RunE:  routes,
}

var headsignsCmd = &cobra.Command{
	Use:   "headsigns",
	Short: "Counts trips per route and headsign",
	Args:  cobra.NoArgs,
	RunE:  headsigns,
}

var format string

func init() {
	for _, cmd := range []*cobra.Command{routesCmd, headsignsCmd} {
		cmd.Flags().StringVarP(&format, "format", "f", string(render.FormatText), "Output format: text, csv, json or html")
	}
}

func routes(cmd *cobra.Command, args []string) error {
	f, err := render.ParseFormat(format)
	if err != nil {
		return err
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	routes, err := a.views.Routes(cmd.Context())
	if err != nil {
		return err
	}

	return render.Routes(cmd.OutOrStdout(), f, routes)
}

func headsigns(cmd *cobra.Command, args []string) error {
	f, err := render.ParseFormat(format)
	if err != nil {
		return err
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.views.TripCounts(cmd.Context())
	if err != nil {
		return err
	}

	return render.TripCounts(cmd.OutOrStdout(), f, counts)
}
