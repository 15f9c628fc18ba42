package testutil

// Helpers and configuration for tests.

import (
	"archive/zip"
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tidbyt.dev/gtfsimport/storage"
)

// Connection settings for the optional database backends. Tests
// against a backend are skipped unless its variable is set.
const (
	PostgresEnv = "GTFSIMPORT_TEST_POSTGRES"
	MySQLEnv    = "GTFSIMPORT_TEST_MYSQL"
)

const (
	RoutesHeader = "route_id,agency_id,route_short_name,route_long_name,route_desc,route_type,route_url,route_color,route_text_color,route_sort_order"
	TripsHeader  = "trip_id,route_id,service_id,trip_headsign,direction_id,block_id,shape_id"
)

// Backends to run storage tests against.
func Backends() []string {
	backends := []string{"memory", "sqlite"}
	if os.Getenv(PostgresEnv) != "" {
		backends = append(backends, "postgres")
	}
	if os.Getenv(MySQLEnv) != "" {
		backends = append(backends, "mysql")
	}
	return backends
}

func BuildStorage(t testing.TB, backend string) storage.Storage {
	var s storage.Storage
	var err error
	switch backend {
	case "memory":
		s = storage.NewMemoryStorage()
	case "sqlite":
		s, err = storage.NewSQLiteStorage()
		require.NoError(t, err)
	case "postgres":
		connStr := os.Getenv(PostgresEnv)
		if connStr == "" {
			t.Skipf("%s not set", PostgresEnv)
		}
		s, err = storage.NewPSQLStorage(connStr, true)
		require.NoError(t, err)
	case "mysql":
		dsn := os.Getenv(MySQLEnv)
		if dsn == "" {
			t.Skipf("%s not set", MySQLEnv)
		}
		s, err = storage.NewMySQLStorage(storage.MySQLConfig{DSN: dsn}, true)
		require.NoError(t, err)
	}
	require.NotEqual(t, nil, s, "unknown backend %q", backend)

	t.Cleanup(func() { s.Close() })

	return s
}

// Builds a GTFS archive. Each file is given as lines; the headers
// above are prepended to routes.txt and trips.txt unless the first
// line already starts with the header's first column.
func BuildFeed(t testing.TB, routes []string, trips []string) []byte {
	files := map[string][]string{}
	if routes != nil {
		files["routes.txt"] = withHeader(RoutesHeader, routes)
	}
	if trips != nil {
		files["trips.txt"] = withHeader(TripsHeader, trips)
	}
	return BuildZip(t, files)
}

func withHeader(header string, lines []string) []string {
	if len(lines) > 0 && strings.HasPrefix(lines[0], strings.SplitN(header, ",", 2)[0]) {
		return lines
	}
	return append([]string{header}, lines...)
}

func BuildZip(
	t testing.TB,
	files map[string][]string,
) []byte {

	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(content, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}
