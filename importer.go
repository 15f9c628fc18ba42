package gtfsimport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tidbyt.dev/gtfsimport/downloader"
	"tidbyt.dev/gtfsimport/parse"
	"tidbyt.dev/gtfsimport/storage"
)

const (
	DefaultDownloadTimeout = 60 * time.Second
	DefaultDownloadMaxSize = 800 << 20 // 800 MB
)

var (
	ErrEmptyFilename = errors.New("no selected file")
	ErrNotZip        = errors.New("not a zip file")
)

// Progress of a single ingestion. Stages are passed strictly in
// order; an ingestion ends either Committed or Failed.
type Stage int

const (
	StageIdle Stage = iota
	StageConnectionOpened
	StageSchemaEnsured
	StageTripsCleared
	StageRoutesLoaded
	StageTripsLoaded
	StageCommitted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageConnectionOpened:
		return "connection_opened"
	case StageSchemaEnsured:
		return "schema_ensured"
	case StageTripsCleared:
		return "trips_cleared"
	case StageRoutesLoaded:
		return "routes_loaded"
	case StageTripsLoaded:
		return "trips_loaded"
	case StageCommitted:
		return "committed"
	case StageFailed:
		return "failed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// An ingestion failed. Stage is the last stage reached before the
// failure. Nothing was committed.
type IngestError struct {
	ID    uuid.UUID
	Stage Stage
	Err   error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s failed after %s: %v", e.ID, e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// Outcome of a committed ingestion.
type Summary struct {
	ID         uuid.UUID     `json:"id"`
	Routes     int           `json:"routes"`
	Trips      int           `json:"trips"`
	ImportedAt time.Time     `json:"imported_at"`
	Duration   time.Duration `json:"duration"`
}

// Loads routes.txt and trips.txt from GTFS archives into storage.
//
// Each ingestion runs in a single storage batch: trips are cleared
// and reloaded, routes are appended, and either all of it is
// committed or none of it. Ingestions are serialized.
type Importer struct {
	Logger          *slog.Logger
	Downloader      downloader.Downloader
	DownloadTimeout time.Duration
	DownloadMaxSize int
	TimeNow         func() time.Time

	// Downloaded archives are reused for this long. 0 disables
	// caching.
	DownloadCacheTTL time.Duration

	// Accept routes.txt and trips.txt from a single subdirectory
	// when the archive has none at the top level.
	AllowNestedMembers bool

	// Called after every committed ingestion, with the import
	// lock still held.
	AfterCommit func(*Summary)

	storage storage.Storage
	mutex   sync.Mutex
}

func NewImporter(s storage.Storage) *Importer {
	return &Importer{
		Logger:          slog.Default(),
		Downloader:      downloader.NewMemoryDownloader(),
		DownloadTimeout: DefaultDownloadTimeout,
		DownloadMaxSize: DefaultDownloadMaxSize,
		TimeNow:         time.Now,
		storage:         s,
	}
}

// Checks that an uploaded file name looks like a zip archive.
func CheckUploadName(filename string) error {
	if filename == "" {
		return ErrEmptyFilename
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".zip") {
		return fmt.Errorf("%w: %s", ErrNotZip, filename)
	}
	return nil
}

// Ingests an uploaded archive. Files not named *.zip are rejected
// without touching storage.
func (m *Importer) IngestUpload(ctx context.Context, filename string, buf []byte) (*Summary, error) {
	if err := CheckUploadName(filename); err != nil {
		return nil, err
	}
	return m.Ingest(ctx, buf)
}

// Downloads an archive and ingests it.
func (m *Importer) IngestURL(ctx context.Context, url string, headers map[string]string) (*Summary, error) {
	buf, err := m.Downloader.Get(ctx, url, headers, downloader.GetOptions{
		Timeout:  m.DownloadTimeout,
		MaxSize:  m.DownloadMaxSize,
		Cache:    m.DownloadCacheTTL > 0,
		CacheTTL: m.DownloadCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", url, err)
	}
	return m.Ingest(ctx, buf)
}

// Ingests a GTFS archive held in buf.
func (m *Importer) Ingest(ctx context.Context, buf []byte) (*Summary, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	start := m.TimeNow()
	summary := &Summary{
		ID: uuid.New(),

		// Shared by every trip of this ingestion.
		ImportedAt: start.UTC().Truncate(time.Second),
	}
	log := m.Logger.With("import_id", summary.ID.String())

	stage := StageIdle
	fail := func(err error) (*Summary, error) {
		log.Error("ingest failed", "stage", stage.String(), "err", err)
		return nil, &IngestError{ID: summary.ID, Stage: stage, Err: err}
	}
	advance := func(next Stage) {
		stage = next
		log.Debug("ingest stage", "stage", stage.String())
	}

	// Both members are resolved before anything is written, so a
	// broken archive never reaches storage.
	archive, err := parse.OpenArchive(buf, parse.ArchiveOptions{AllowNested: m.AllowNestedMembers})
	if err != nil {
		return fail(err)
	}
	routesText, err := archive.Member(parse.RoutesFile)
	if err != nil {
		return fail(err)
	}
	tripsText, err := archive.Member(parse.TripsFile)
	if err != nil {
		return fail(err)
	}

	batch, err := m.storage.Begin(ctx)
	if err != nil {
		return fail(err)
	}
	defer batch.Rollback()
	advance(StageConnectionOpened)

	if err := batch.EnsureSchema(ctx); err != nil {
		return fail(err)
	}
	advance(StageSchemaEnsured)

	if err := batch.ClearTrips(ctx); err != nil {
		return fail(err)
	}
	advance(StageTripsCleared)

	summary.Routes, err = parse.ParseRoutes(ctx, batch, routesText)
	if err != nil {
		return fail(fmt.Errorf("loading %s: %w", parse.RoutesFile, err))
	}
	advance(StageRoutesLoaded)

	summary.Trips, err = parse.ParseTrips(ctx, batch, tripsText, summary.ImportedAt)
	if err != nil {
		return fail(fmt.Errorf("loading %s: %w", parse.TripsFile, err))
	}
	advance(StageTripsLoaded)

	if err := batch.Commit(); err != nil {
		return fail(err)
	}
	advance(StageCommitted)

	summary.Duration = m.TimeNow().Sub(start)
	log.Info("ingest committed",
		"routes", summary.Routes,
		"trips", summary.Trips,
		"duration", summary.Duration,
	)

	if m.AfterCommit != nil {
		m.AfterCommit(summary)
	}

	return summary, nil
}

// Stable name for the kind of failure behind err, for presentation.
func ErrorKind(err error) string {
	var (
		archiveErr  *parse.ArchiveError
		decodeErr   *parse.DecodeError
		schemaErr   *parse.SchemaError
		storeErr    *storage.StoreError
		statusErr   *downloader.StatusError
		tooLargeErr *downloader.TooLargeError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyFilename):
		return "empty_filename"
	case errors.Is(err, ErrNotZip):
		return "not_zip"
	case errors.As(err, &archiveErr):
		return "archive"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &schemaErr):
		return "schema"
	case errors.As(err, &storeErr):
		return "store"
	case errors.As(err, &statusErr), errors.As(err, &tooLargeErr):
		return "download"
	}
	return "internal"
}
