package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Connection settings for MySQL / MariaDB. If DSN is set, it's used
// as is and the other fields are ignored.
type MySQLConfig struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

func (c MySQLConfig) FormatDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 3306
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.DBName = c.DBName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	return cfg.FormatDSN()
}

type MySQLStorage struct {
	*sqlStorage
}

var mysqlDialect = &dialect{
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
    imported_at DATETIME(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`, `
CREATE TABLE IF NOT EXISTS trips (
    trip_id TEXT,
    route_id TEXT,
    service_id TEXT,
    trip_headsign TEXT,
    direction_id TEXT,
    block_id TEXT,
    shape_id TEXT,
    imported_at DATETIME(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`},
	insertRoute: sqliteDialect.insertRoute,
	insertTrip:  sqliteDialect.insertTrip,

	ddlOutsideTx: true,
}

// Creates a MySQL (or MariaDB) backed Storage.
//
// If clearDB is true, both tables are dropped on startup.
func NewMySQLStorage(cfg MySQLConfig, clearDB bool) (*MySQLStorage, error) {
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, storeErr("opening database", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storeErr("pinging database", err)
	}

	if clearDB {
		for _, table := range []string{"routes", "trips"} {
			if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				db.Close()
				return nil, storeErr("clearing database", err)
			}
		}
	}

	s := &MySQLStorage{sqlStorage: newSQLStorage(db, mysqlDialect)}
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return s, nil
}
