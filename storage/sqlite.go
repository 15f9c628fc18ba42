package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const DefaultSQLitePath = "gtfsdata.db"

type SQLiteConfig struct {
	OnDisk bool
	Path   string
}

type SQLiteStorage struct {
	*sqlStorage
	SQLiteConfig
}

var sqliteDialect = &dialect{
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
    imported_at TIMESTAMP
);`, `
CREATE TABLE IF NOT EXISTS trips (
    trip_id TEXT,
    route_id TEXT,
    service_id TEXT,
    trip_headsign TEXT,
    direction_id TEXT,
    block_id TEXT,
    shape_id TEXT,
    imported_at TIMESTAMP
);`},
	insertRoute: `
INSERT INTO routes (
    route_id, agency_id, route_short_name, route_long_name, route_desc,
    route_type, route_url, route_color, route_text_color, route_sort_order, imported_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	insertTrip: `
INSERT INTO trips (
    trip_id, route_id, service_id, trip_headsign,
    direction_id, block_id, shape_id, imported_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
}

// Creates a SQLite backed Storage. Without config, or with OnDisk
// unset, data is kept in memory for the lifetime of the Storage.
func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	config := SQLiteConfig{}
	if len(cfg) > 0 {
		config = cfg[0]
	}

	if !config.OnDisk {
		db, err := sql.Open("sqlite3", ":memory:")
		if err != nil {
			return nil, storeErr("opening database", err)
		}

		// Every connection to :memory: is a separate database, so
		// reads share the writer's one connection and wait for any
		// open batch to finish.
		db.SetMaxOpenConns(1)

		return newSQLiteStorage(config, newSQLStorage(db, sqliteDialect))
	}

	if config.Path == "" {
		config.Path = DefaultSQLitePath
	}

	// Concurrent writers to a file only get SQLITE_BUSY, so there
	// is a single writer connection. WAL lets the separate read
	// handle see the last commit while a batch is open.
	db, err := sql.Open("sqlite3", config.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, storeErr("opening database", err)
	}
	db.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite3", config.Path+"?_query_only=true&_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, storeErr("opening database", err)
	}

	ss := newSQLStorage(db, sqliteDialect)
	ss.reader = reader

	return newSQLiteStorage(config, ss)
}

func newSQLiteStorage(config SQLiteConfig, ss *sqlStorage) (*SQLiteStorage, error) {
	s := &SQLiteStorage{
		sqlStorage:   ss,
		SQLiteConfig: config,
	}

	if err := s.EnsureSchema(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return s, nil
}
