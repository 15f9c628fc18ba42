package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"tidbyt.dev/gtfsimport/model"
)

const (
	PSQLTripBatchSize = 10000
)

type PSQLStorage struct {
	*sqlStorage
}

var psqlDialect = &dialect{
	schema: []string{`
CREATE TABLE IF NOT EXISTS routes (
    route_id TEXT,
    agency_id TEXT,
    route_short_name TEXT,
    route_long_name TEXT,
    route_desc TEXT,
    route_type TEXT,
    route_url TEXT,
    route_color TEXT,
    route_text_color TEXT,
    route_sort_order TEXT,
    imported_at TIMESTAMPTZ
);`, `
CREATE TABLE IF NOT EXISTS trips (
    trip_id TEXT,
    route_id TEXT,
    service_id TEXT,
    trip_headsign TEXT,
    direction_id TEXT,
    block_id TEXT,
    shape_id TEXT,
    imported_at TIMESTAMPTZ
);`},
	insertRoute: `
INSERT INTO routes (
    route_id, agency_id, route_short_name, route_long_name, route_desc,
    route_type, route_url, route_color, route_text_color, route_sort_order, imported_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	insertTrip: `
INSERT INTO trips (
    trip_id, route_id, service_id, trip_headsign,
    direction_id, block_id, shape_id, imported_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, both tables are dropped on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, storeErr("opening database", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storeErr("pinging database", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS routes;
DROP TABLE IF EXISTS trips;
`)
		if err != nil {
			db.Close()
			return nil, storeErr("clearing database", err)
		}
	}

	s := &PSQLStorage{sqlStorage: newSQLStorage(db, psqlDialect)}
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return s, nil
}

// Trips are buffered and written with COPY, in the batch's
// transaction.
func (s *PSQLStorage) Begin(ctx context.Context) (Batch, error) {
	b, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return &psqlBatch{sqlBatch: b, ctx: ctx}, nil
}

type psqlBatch struct {
	*sqlBatch
	ctx     context.Context
	tripBuf []model.Trip
}

func (b *psqlBatch) InsertTrip(ctx context.Context, trip *model.Trip) error {
	b.tripBuf = append(b.tripBuf, *trip)

	if len(b.tripBuf) >= PSQLTripBatchSize {
		if err := b.flushTrips(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Buffered trips must not survive a ClearTrips.
func (b *psqlBatch) ClearTrips(ctx context.Context) error {
	b.tripBuf = nil
	return b.sqlBatch.ClearTrips(ctx)
}

func (b *psqlBatch) flushTrips(ctx context.Context) error {
	stmt, err := b.tx.PrepareContext(ctx, pq.CopyIn(
		"trips", "trip_id", "route_id", "service_id", "trip_headsign",
		"direction_id", "block_id", "shape_id", "imported_at",
	))
	if err != nil {
		return storeErr("preparing trip copy", err)
	}
	defer stmt.Close()

	for _, t := range b.tripBuf {
		_, err = stmt.ExecContext(ctx,
			t.ID, t.RouteID, t.ServiceID, t.Headsign, t.DirectionID, t.BlockID, t.ShapeID, t.ImportedAt.UTC(),
		)
		if err != nil {
			return storeErr("copying trip", err)
		}
	}

	if _, err = stmt.ExecContext(ctx); err != nil {
		return storeErr("flushing trip copy", err)
	}

	b.tripBuf = nil

	return nil
}

func (b *psqlBatch) Commit() error {
	if !b.done && len(b.tripBuf) > 0 {
		if err := b.flushTrips(b.ctx); err != nil {
			b.sqlBatch.Rollback()
			return err
		}
	}
	return b.sqlBatch.Commit()
}
