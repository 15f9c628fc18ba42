package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tidbyt.dev/gtfsimport/model"
)

// Queries differing between the SQL backends.
type dialect struct {
	schema      []string
	insertRoute string
	insertTrip  string

	// MySQL commits implicitly on DDL, so schema changes can't
	// be part of a batch transaction there.
	ddlOutsideTx bool
}

const tripCountsByRouteQuery = `
SELECT r.route_id, r.route_short_name, r.route_long_name, t.trip_headsign, COUNT(*) AS trip_count
FROM trips t
JOIN (
    SELECT DISTINCT route_id, route_short_name, route_long_name
    FROM routes
) r ON t.route_id = r.route_id
GROUP BY r.route_id, r.route_short_name, r.route_long_name, t.trip_headsign
ORDER BY r.route_id, t.trip_headsign, r.route_short_name, r.route_long_name`

const tripCountsLegacyQuery = `
SELECT MIN(r.route_id), MIN(r.route_short_name), MIN(r.route_long_name), t.trip_headsign, COUNT(*) AS trip_count
FROM trips t
JOIN routes r ON t.trip_id = r.route_id
GROUP BY t.trip_id, t.trip_headsign
ORDER BY 1, 4`

// Shared implementation of Storage on top of database/sql.
type sqlStorage struct {
	db      *sql.DB
	dialect *dialect

	// Handle for queries outside of batches. Same as db unless the
	// backend needs reads kept off the writer's connection.
	reader *sql.DB

	// Clock used to stamp routes on insert.
	TimeNow func() time.Time
}

func newSQLStorage(db *sql.DB, d *dialect) *sqlStorage {
	return &sqlStorage{
		db:      db,
		dialect: d,
		reader:  db,
		TimeNow: time.Now,
	}
}

func (s *sqlStorage) now() time.Time {
	return s.TimeNow().UTC()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *sqlStorage) createTables(ctx context.Context, ex execer) error {
	for _, query := range s.dialect.schema {
		if _, err := ex.ExecContext(ctx, query); err != nil {
			return storeErr("ensuring schema", err)
		}
	}
	return nil
}

func (s *sqlStorage) EnsureSchema(ctx context.Context) error {
	return s.createTables(ctx, s.db)
}

func (s *sqlStorage) Begin(ctx context.Context) (Batch, error) {
	return s.begin(ctx)
}

func (s *sqlStorage) begin(ctx context.Context) (*sqlBatch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("beginning batch", err)
	}
	return &sqlBatch{s: s, tx: tx}, nil
}

func (s *sqlStorage) AllRoutes(ctx context.Context) ([]*model.Route, error) {
	conn, err := s.reader.Conn(ctx)
	if err != nil {
		return nil, storeErr("connecting", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `
SELECT
    route_id,
    agency_id,
    route_short_name,
    route_long_name,
    route_desc,
    route_type,
    route_url,
    route_color,
    route_text_color,
    route_sort_order,
    imported_at
FROM routes`)
	if err != nil {
		return nil, storeErr("listing routes", err)
	}
	defer rows.Close()

	routes := []*model.Route{}
	for rows.Next() {
		r := &model.Route{}
		err := rows.Scan(
			&r.ID,
			&r.AgencyID,
			&r.ShortName,
			&r.LongName,
			&r.Desc,
			&r.Type,
			&r.URL,
			&r.Color,
			&r.TextColor,
			&r.SortOrder,
			&r.ImportedAt,
		)
		if err != nil {
			return nil, storeErr("scanning route", err)
		}
		r.ImportedAt = r.ImportedAt.UTC()
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("listing routes", err)
	}

	return routes, nil
}

func (s *sqlStorage) AllTrips(ctx context.Context) ([]*model.Trip, error) {
	conn, err := s.reader.Conn(ctx)
	if err != nil {
		return nil, storeErr("connecting", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `
SELECT
    trip_id,
    route_id,
    service_id,
    trip_headsign,
    direction_id,
    block_id,
    shape_id,
    imported_at
FROM trips`)
	if err != nil {
		return nil, storeErr("listing trips", err)
	}
	defer rows.Close()

	trips := []*model.Trip{}
	for rows.Next() {
		t := &model.Trip{}
		err := rows.Scan(
			&t.ID,
			&t.RouteID,
			&t.ServiceID,
			&t.Headsign,
			&t.DirectionID,
			&t.BlockID,
			&t.ShapeID,
			&t.ImportedAt,
		)
		if err != nil {
			return nil, storeErr("scanning trip", err)
		}
		t.ImportedAt = t.ImportedAt.UTC()
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("listing trips", err)
	}

	return trips, nil
}

func (s *sqlStorage) TripCountsByHeadsign(ctx context.Context, join model.JoinMode) ([]*model.HeadsignCount, error) {
	var query string
	switch join {
	case model.JoinRoute:
		query = tripCountsByRouteQuery
	case model.JoinLegacy:
		query = tripCountsLegacyQuery
	default:
		return nil, fmt.Errorf("unknown join mode %q", join)
	}

	conn, err := s.reader.Conn(ctx)
	if err != nil {
		return nil, storeErr("connecting", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("counting trips", err)
	}
	defer rows.Close()

	counts := []*model.HeadsignCount{}
	for rows.Next() {
		c := &model.HeadsignCount{}
		err := rows.Scan(&c.RouteID, &c.RouteShortName, &c.RouteLongName, &c.Headsign, &c.TripCount)
		if err != nil {
			return nil, storeErr("scanning trip count", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("counting trips", err)
	}

	return counts, nil
}

func (s *sqlStorage) Counts(ctx context.Context) (model.Counts, error) {
	conn, err := s.reader.Conn(ctx)
	if err != nil {
		return model.Counts{}, storeErr("connecting", err)
	}
	defer conn.Close()

	var counts model.Counts
	err = conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM routes`).Scan(&counts.Routes)
	if err != nil {
		return model.Counts{}, storeErr("counting routes", err)
	}
	err = conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips`).Scan(&counts.Trips)
	if err != nil {
		return model.Counts{}, storeErr("counting trips", err)
	}

	return counts, nil
}

func (s *sqlStorage) Close() error {
	var readerErr error
	if s.reader != s.db {
		readerErr = s.reader.Close()
	}
	if err := s.db.Close(); err != nil {
		return storeErr("closing", err)
	}
	return storeErr("closing", readerErr)
}

type sqlBatch struct {
	s    *sqlStorage
	tx   *sql.Tx
	done bool
}

func (b *sqlBatch) EnsureSchema(ctx context.Context) error {
	if b.s.dialect.ddlOutsideTx {
		return b.s.createTables(ctx, b.s.db)
	}
	return b.s.createTables(ctx, b.tx)
}

func (b *sqlBatch) ClearTrips(ctx context.Context) error {
	_, err := b.tx.ExecContext(ctx, `DELETE FROM trips`)
	return storeErr("clearing trips", err)
}

func (b *sqlBatch) InsertRoute(ctx context.Context, r *model.Route) error {
	_, err := b.tx.ExecContext(ctx, b.s.dialect.insertRoute,
		r.ID,
		r.AgencyID,
		r.ShortName,
		r.LongName,
		r.Desc,
		r.Type,
		r.URL,
		r.Color,
		r.TextColor,
		r.SortOrder,
		b.s.now(),
	)
	return storeErr("inserting route", err)
}

func (b *sqlBatch) InsertTrip(ctx context.Context, t *model.Trip) error {
	_, err := b.tx.ExecContext(ctx, b.s.dialect.insertTrip,
		t.ID,
		t.RouteID,
		t.ServiceID,
		t.Headsign,
		t.DirectionID,
		t.BlockID,
		t.ShapeID,
		t.ImportedAt.UTC(),
	)
	return storeErr("inserting trip", err)
}

func (b *sqlBatch) Commit() error {
	if b.done {
		return storeErr("committing", sql.ErrTxDone)
	}
	b.done = true
	return storeErr("committing", b.tx.Commit())
}

func (b *sqlBatch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	return storeErr("rolling back", b.tx.Rollback())
}
