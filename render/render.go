// Package render formats routes and trip counts for display. It only
// deals in model records and knows nothing about how they were
// loaded.
package render

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsimport/model"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatJSON, FormatCSV, FormatText:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	}
	return "text/html; charset=utf-8"
}

var RouteColumns = []string{
	"route_id",
	"agency_id",
	"route_short_name",
	"route_long_name",
	"route_desc",
	"route_type",
	"route_url",
	"route_color",
	"route_text_color",
	"route_sort_order",
	"imported_at",
}

var TripCountColumns = []string{
	"route_id",
	"route_short_name",
	"route_long_name",
	"trip_headsign",
	"trip_count",
}

//go:embed templates/*.html
var templateFS embed.FS

var pages = map[string]*template.Template{}

func init() {
	funcs := template.FuncMap{
		"timestamp": formatTimestamp,
	}
	for _, page := range []string{"index.html", "routes.html", "trips_by_headsign.html"} {
		pages[page] = template.Must(
			template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page),
		)
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// A one-off message shown on the upload page.
type Flash struct {
	Level   string
	Message string
}

func Index(w io.Writer, flash *Flash) error {
	return pages["index.html"].ExecuteTemplate(w, "index.html", struct {
		Title string
		Flash *Flash
	}{"GTFS Import", flash})
}

func Routes(w io.Writer, format Format, routes []*model.Route) error {
	switch format {
	case FormatJSON:
		return json.NewEncoder(w).Encode(routes)
	case FormatCSV:
		return gocsv.Marshal(routes, w)
	case FormatText:
		rows := make([][]string, 0, len(routes))
		for _, r := range routes {
			rows = append(rows, []string{
				r.ID, r.AgencyID, r.ShortName, r.LongName, r.Desc, r.Type,
				r.URL, r.Color, r.TextColor, r.SortOrder, formatTimestamp(r.ImportedAt),
			})
		}
		return table(w, RouteColumns, rows)
	}

	return pages["routes.html"].ExecuteTemplate(w, "routes.html", struct {
		Title   string
		Columns []string
		Routes  []*model.Route
	}{"Routes Data", RouteColumns, routes})
}

func TripCounts(w io.Writer, format Format, counts []*model.HeadsignCount) error {
	switch format {
	case FormatJSON:
		return json.NewEncoder(w).Encode(counts)
	case FormatCSV:
		return gocsv.Marshal(counts, w)
	case FormatText:
		rows := make([][]string, 0, len(counts))
		for _, c := range counts {
			rows = append(rows, []string{
				c.RouteID, c.RouteShortName, c.RouteLongName, c.Headsign, fmt.Sprint(c.TripCount),
			})
		}
		return table(w, TripCountColumns, rows)
	}

	return pages["trips_by_headsign.html"].ExecuteTemplate(w, "trips_by_headsign.html", struct {
		Title   string
		Columns []string
		Counts  []*model.HeadsignCount
	}{"Trips by Headsign", TripCountColumns, counts})
}
