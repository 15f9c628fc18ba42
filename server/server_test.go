package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/gtfsimport"
	"tidbyt.dev/gtfsimport/model"
	"tidbyt.dev/gtfsimport/server"
	"tidbyt.dev/gtfsimport/storage"
	"tidbyt.dev/gtfsimport/testutil"
)

type fixture struct {
	srv     *server.Server
	storage storage.Storage
}

func newFixture(t *testing.T, s storage.Storage) *fixture {
	importer := gtfsimport.NewImporter(s)
	importer.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	views := gtfsimport.NewViews(s, model.JoinRoute, 16, 0)
	importer.AfterCommit = func(*gtfsimport.Summary) { views.Purge() }

	srv := server.New(importer, views, server.Config{Logger: importer.Logger})
	return &fixture{srv: srv, storage: s}
}

func (f *fixture) do(t *testing.T, req *http.Request) (int, string) {
	resp, err := f.srv.App.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

// Builds a multipart upload. With field empty, no file part is
// included at all.
func uploadRequest(t *testing.T, target, field, filename string, content []byte) *http.Request {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, w.WriteField("other", "value"))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func example(t *testing.T) []byte {
	return testutil.BuildFeed(t, []string{"R1,A1,1,Main,,3,,,,"}, []string{"T1,R1,S1,Downtown,0,,"})
}

func TestIndex(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStorage())

	status, body := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `<form method="post" action="/upload"`)
}

func TestUpload(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStorage())

	status, body := f.do(t, uploadRequest(t, "/upload", "file", "gtfs.zip", example(t)))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, server.MsgProcessed)

	counts, err := f.storage.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Counts{Routes: 1, Trips: 1}, counts)
}

func TestUploadJSON(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStorage())

	status, body := f.do(t, uploadRequest(t, "/upload?format=json", "file", "gtfs.zip", example(t)))
	require.Equal(t, http.StatusOK, status)

	var res struct {
		Message string `json:"message"`
		Summary struct {
			Routes int `json:"routes"`
			Trips  int `json:"trips"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	assert.Equal(t, server.MsgProcessed, res.Message)
	assert.Equal(t, 1, res.Summary.Routes)
	assert.Equal(t, 1, res.Summary.Trips)
}

func TestUploadRejected(t *testing.T) {
	for _, tc := range []struct {
		name     string
		field    string
		filename string
		message  string
	}{
		{"no_file_part", "", "", server.MsgNoFilePart},
		{"wrong_field", "upload", "gtfs.zip", server.MsgNoFilePart},
		{"no_selected_file", "file", "", server.MsgNoSelectedFile},
		{"not_zip", "file", "gtfs.txt", server.MsgInvalidFormat},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, storage.NewMemoryStorage())

			status, body := f.do(t, uploadRequest(t, "/upload", tc.field, tc.filename, example(t)))
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Contains(t, body, tc.message)

			counts, err := f.storage.Counts(context.Background())
			require.NoError(t, err)
			assert.Equal(t, model.Counts{}, counts)
		})
	}
}

func TestUploadFailureKinds(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content []byte
		kind    string
	}{
		{"not_an_archive", []byte("nope"), "archive"},
		{"missing_trips", testutil.BuildFeed(t, []string{"R1,A1,1,Main,,3,,,,"}, nil), "archive"},
		{"short_row", testutil.BuildFeed(t, []string{"R1,A1"}, []string{"T1,R1,S1,Downtown,0,,"}), "schema"},
		{"bad_quote", testutil.BuildFeed(t, []string{"R1,A1,\"1,Main,,3,,,,"}, []string{"T1,R1,S1,Downtown,0,,"}), "decode"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, storage.NewMemoryStorage())

			status, body := f.do(t, uploadRequest(t, "/upload?format=json", "file", "gtfs.zip", tc.content))
			assert.Equal(t, http.StatusUnprocessableEntity, status)

			var res struct {
				Kind string `json:"kind"`
			}
			require.NoError(t, json.Unmarshal([]byte(body), &res))
			assert.Equal(t, tc.kind, res.Kind)

			counts, err := f.storage.Counts(context.Background())
			require.NoError(t, err)
			assert.Equal(t, model.Counts{}, counts)
		})
	}
}

func TestRoutesAndHeadsigns(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStorage())

	// Empty before any upload
	status, body := f.do(t, httptest.NewRequest(http.MethodGet, "/routes?format=json", nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "[]\n", body)

	status, _ = f.do(t, uploadRequest(t, "/upload", "file", "gtfs.zip", example(t)))
	require.Equal(t, http.StatusOK, status)

	// Views were purged by the upload
	status, body = f.do(t, httptest.NewRequest(http.MethodGet, "/routes?format=json", nil))
	require.Equal(t, http.StatusOK, status)
	var routes []*model.Route
	require.NoError(t, json.Unmarshal([]byte(body), &routes))
	require.Equal(t, 1, len(routes))
	assert.Equal(t, "R1", routes[0].ID)

	status, body = f.do(t, httptest.NewRequest(http.MethodGet, "/routes", nil))
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "<td>R1</td>")

	status, body = f.do(t, httptest.NewRequest(http.MethodGet, "/trips_by_headsign?format=csv", nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "route_id,route_short_name,route_long_name,trip_headsign,trip_count\nR1,1,Main,Downtown,1\n", body)

	status, body = f.do(t, httptest.NewRequest(http.MethodGet, "/trips_by_headsign", nil))
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "<td>Downtown</td>")

	status, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/routes?format=xml", nil))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStorage())

	status, _ := f.do(t, uploadRequest(t, "/upload", "file", "gtfs.zip", example(t)))
	require.Equal(t, http.StatusOK, status)

	status, body := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, status)

	var health map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(1), health["routes"])
	assert.Equal(t, float64(1), health["trips"])
	assert.Equal(t, "route", health["headsign_join"])
}

func TestHealthDuringIngestion(t *testing.T) {
	s, err := storage.NewSQLiteStorage(storage.SQLiteConfig{
		OnDisk: true,
		Path:   filepath.Join(t.TempDir(), "gtfsdata.db"),
	})
	require.NoError(t, err)
	defer s.Close()
	f := newFixture(t, s)

	status, _ := f.do(t, uploadRequest(t, "/upload", "file", "gtfs.zip", example(t)))
	require.Equal(t, http.StatusOK, status)

	// Holds the writer, as a slow upload would
	batch, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer batch.Rollback()
	require.NoError(t, batch.ClearTrips(context.Background()))

	status, body := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, status, body)

	var health map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(1), health["trips"])
}

func TestStoreUnavailable(t *testing.T) {
	s, err := storage.NewSQLiteStorage()
	require.NoError(t, err)
	f := newFixture(t, s)
	require.NoError(t, s.Close())

	status, body := f.do(t, httptest.NewRequest(http.MethodGet, "/routes", nil))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, server.MsgStoreDown)

	status, body = f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, "unhealthy")

	status, body = f.do(t, uploadRequest(t, "/upload?format=json", "file", "gtfs.zip", example(t)))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body, `"kind":"store"`)
}
