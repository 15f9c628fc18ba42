package parse

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"tidbyt.dev/gtfsimport/storage"
)

// Decodes trips.txt content and writes every data row to the batch,
// all stamped with importedAt. Returns the number of trips written.
func ParseTrips(ctx context.Context, batch storage.Batch, text string, importedAt time.Time) (int, error) {
	dec, err := NewDecoder(text, DefaultDelimiter, DefaultQuote)
	if err != nil {
		return 0, err
	}

	rows := dec.Rows()
	if !rows.SkipHeader() {
		return 0, rows.Err()
	}

	n := 0
	for rows.Next() {
		trip, err := MapTrip(rows.Row(), rows.Line(), importedAt)
		if err != nil {
			return n, err
		}
		if err := batch.InsertTrip(ctx, trip); err != nil {
			return n, errors.Wrapf(err, "writing trip (line %d)", rows.Line())
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}

	return n, nil
}
