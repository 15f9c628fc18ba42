package model

import (
	"fmt"
	"time"
)

// Holds all external facing types and constants.

// Number of positional fields in a routes.txt and trips.txt data row.
const (
	RouteWidth = 10
	TripWidth  = 7
)

type EntityKind string

const (
	KindRoute EntityKind = "route"
	KindTrip  EntityKind = "trip"
)

// Width of a data row for the entity kind, or 0 if the kind is
// unknown.
func (k EntityKind) Width() int {
	switch k {
	case KindRoute:
		return RouteWidth
	case KindTrip:
		return TripWidth
	}
	return 0
}

// A row from routes.txt. All GTFS fields are kept as the text found
// in the archive. ImportedAt is stamped by storage when the row is
// inserted.
type Route struct {
	ID         string    `csv:"route_id" json:"route_id"`
	AgencyID   string    `csv:"agency_id" json:"agency_id"`
	ShortName  string    `csv:"route_short_name" json:"route_short_name"`
	LongName   string    `csv:"route_long_name" json:"route_long_name"`
	Desc       string    `csv:"route_desc" json:"route_desc"`
	Type       string    `csv:"route_type" json:"route_type"`
	URL        string    `csv:"route_url" json:"route_url"`
	Color      string    `csv:"route_color" json:"route_color"`
	TextColor  string    `csv:"route_text_color" json:"route_text_color"`
	SortOrder  string    `csv:"route_sort_order" json:"route_sort_order"`
	ImportedAt time.Time `csv:"imported_at" json:"imported_at"`
}

// A row from trips.txt. ImportedAt is the same for every trip loaded
// by one upload.
type Trip struct {
	ID          string    `csv:"trip_id" json:"trip_id"`
	RouteID     string    `csv:"route_id" json:"route_id"`
	ServiceID   string    `csv:"service_id" json:"service_id"`
	Headsign    string    `csv:"trip_headsign" json:"trip_headsign"`
	DirectionID string    `csv:"direction_id" json:"direction_id"`
	BlockID     string    `csv:"block_id" json:"block_id"`
	ShapeID     string    `csv:"shape_id" json:"shape_id"`
	ImportedAt  time.Time `csv:"imported_at" json:"imported_at"`
}

// Number of trips per route and headsign.
type HeadsignCount struct {
	RouteID        string `csv:"route_id" json:"route_id"`
	RouteShortName string `csv:"route_short_name" json:"route_short_name"`
	RouteLongName  string `csv:"route_long_name" json:"route_long_name"`
	Headsign       string `csv:"trip_headsign" json:"trip_headsign"`
	TripCount      int    `csv:"trip_count" json:"trip_count"`
}

// Selects how trips are matched with routes when counting trips per
// headsign.
type JoinMode string

const (
	// trips.route_id = routes.route_id
	JoinRoute JoinMode = "route"

	// trips.trip_id = routes.route_id, grouped per trip. Kept for
	// compatibility with earlier headsign reports. Only matches
	// feeds where trip and route IDs happen to coincide.
	JoinLegacy JoinMode = "legacy"
)

func ParseJoinMode(s string) (JoinMode, error) {
	switch JoinMode(s) {
	case "", JoinRoute:
		return JoinRoute, nil
	case JoinLegacy:
		return JoinLegacy, nil
	}
	return "", fmt.Errorf("unknown join mode %q", s)
}

// Row counts of the two tables.
type Counts struct {
	Routes int `json:"routes"`
	Trips  int `json:"trips"`
}
