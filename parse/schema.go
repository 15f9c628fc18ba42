package parse

import (
	"time"

	"tidbyt.dev/gtfsimport/model"
)

func checkWidth(kind model.EntityKind, line int, row []string) error {
	if len(row) != kind.Width() {
		return &SchemaError{Kind: kind, Line: line, Got: len(row), Want: kind.Width()}
	}
	return nil
}

// Maps a routes.txt data row onto a Route. Fields are taken by
// position:
//
//	route_id, agency_id, route_short_name, route_long_name, route_desc,
//	route_type, route_url, route_color, route_text_color, route_sort_order
//
// ImportedAt is left unset, storage stamps it on insert.
func MapRoute(row []string, line int) (*model.Route, error) {
	if err := checkWidth(model.KindRoute, line, row); err != nil {
		return nil, err
	}
	return &model.Route{
		ID:        row[0],
		AgencyID:  row[1],
		ShortName: row[2],
		LongName:  row[3],
		Desc:      row[4],
		Type:      row[5],
		URL:       row[6],
		Color:     row[7],
		TextColor: row[8],
		SortOrder: row[9],
	}, nil
}

// Maps a trips.txt data row onto a Trip. Fields are taken by
// position:
//
//	trip_id, route_id, service_id, trip_headsign, direction_id, block_id, shape_id
//
// importedAt is shared by all trips of an upload.
func MapTrip(row []string, line int, importedAt time.Time) (*model.Trip, error) {
	if err := checkWidth(model.KindTrip, line, row); err != nil {
		return nil, err
	}
	return &model.Trip{
		ID:          row[0],
		RouteID:     row[1],
		ServiceID:   row[2],
		Headsign:    row[3],
		DirectionID: row[4],
		BlockID:     row[5],
		ShapeID:     row[6],
		ImportedAt:  importedAt,
	}, nil
}
