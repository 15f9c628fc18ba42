package config

import (
	"github.com/spf13/pflag"
)

const (
	FlagConfig       = "config"
	FlagAddr         = "addr"
	FlagStorage      = "storage"
	FlagSQLitePath   = "sqlite-path"
	FlagPostgresURL  = "postgres-url"
	FlagMySQLDSN     = "mysql-dsn"
	FlagHeadsignJoin = "headsign-join"
	FlagLogLevel     = "log-level"
	FlagLogFormat    = "log-format"
)

// Registers flags that override loaded configuration. Defaults are
// only shown in help; unset flags never override anything.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagConfig, "", "Path to YAML config (default "+DefaultPath+" if present)")
	fs.String(FlagAddr, d.Server.Addr, "HTTP listen address")
	fs.String(FlagStorage, d.Storage.Backend, "Storage backend: memory, sqlite, postgres or mysql")
	fs.String(FlagSQLitePath, d.Storage.SQLitePath, "SQLite database file")
	fs.String(FlagPostgresURL, "", "Postgres connection string")
	fs.String(FlagMySQLDSN, "", "MySQL/MariaDB DSN")
	fs.String(FlagHeadsignJoin, d.Ingest.HeadsignJoin, "Trips by headsign join: route or legacy")
	fs.String(FlagLogLevel, d.Log.Level, "Log level: debug, info, warn or error")
	fs.String(FlagLogFormat, d.Log.Format, "Log format: text or json")
}

// Loads configuration from the file named by the config flag and
// applies every flag set explicitly on fs.
func LoadWithFlags(fs *pflag.FlagSet) (*Config, error) {
	path, err := fs.GetString(FlagConfig)
	if err != nil {
		return nil, err
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyFlags(fs); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	targets := map[string]*string{
		FlagAddr:         &c.Server.Addr,
		FlagStorage:      &c.Storage.Backend,
		FlagSQLitePath:   &c.Storage.SQLitePath,
		FlagPostgresURL:  &c.Storage.PostgresURL,
		FlagMySQLDSN:     &c.Storage.MySQLDSN,
		FlagHeadsignJoin: &c.Ingest.HeadsignJoin,
		FlagLogLevel:     &c.Log.Level,
		FlagLogFormat:    &c.Log.Format,
	}

	for name, dst := range targets {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	return c.Validate()
}
