package storage

import (
	"context"
	"fmt"

	"tidbyt.dev/gtfsimport/model"
)

// Persists routes and trips loaded from GTFS archives.
//
// Routes accumulate: every upload appends its routes, duplicates
// included. Trips are replaced wholesale by each upload, see
// Batch.ClearTrips().
type Storage interface {
	// Creates the routes and trips tables unless they already
	// exist. Never drops data.
	EnsureSchema(ctx context.Context) error

	// Starts a write batch. All writes in a batch become visible
	// at Commit(), or not at all.
	Begin(ctx context.Context) (Batch, error)

	// Every route row, in storage order.
	AllRoutes(ctx context.Context) ([]*model.Route, error)

	// Every trip row, in storage order.
	AllTrips(ctx context.Context) ([]*model.Trip, error)

	// Number of trips per route and headsign, ordered by route
	// ID. The join mode decides how trips are matched with
	// routes.
	TripCountsByHeadsign(ctx context.Context, join model.JoinMode) ([]*model.HeadsignCount, error)

	// Row counts of both tables.
	Counts(ctx context.Context) (model.Counts, error)

	Close() error
}

// Writes for a single upload.
//
// Routes are stamped with the storage clock as they're inserted,
// while trips keep the ImportedAt set by the caller.
type Batch interface {
	EnsureSchema(ctx context.Context) error
	ClearTrips(ctx context.Context) error
	InsertRoute(ctx context.Context, route *model.Route) error
	InsertTrip(ctx context.Context, trip *model.Trip) error
	Commit() error

	// Discards all writes. Calling Rollback() after Commit() is
	// a no-op.
	Rollback() error
}

// Failure talking to the underlying store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
