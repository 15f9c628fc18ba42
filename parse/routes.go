package parse

import (
	"context"

	"github.com/pkg/errors"

	"tidbyt.dev/gtfsimport/storage"
)

// Decodes routes.txt content and writes every data row to the batch.
// Returns the number of routes written.
func ParseRoutes(ctx context.Context, batch storage.Batch, text string) (int, error) {
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
		route, err := MapRoute(rows.Row(), rows.Line())
		if err != nil {
			return n, err
		}
		if err := batch.InsertRoute(ctx, route); err != nil {
			return n, errors.Wrapf(err, "writing route (line %d)", rows.Line())
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}

	return n, nil
}
