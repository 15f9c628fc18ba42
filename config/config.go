package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tidbyt.dev/gtfsimport/model"
	"tidbyt.dev/gtfsimport/storage"
)

// Read when no config path is given, if present.
const DefaultPath = "gtfsimport.yml"

type ServerConfig struct {
	Addr           string        `yaml:"addr" validate:"required"`
	MaxUploadMB    int           `yaml:"maxUploadMB" validate:"gt=0"`
	RequestTimeout time.Duration `yaml:"requestTimeout" validate:"gte=0"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=memory sqlite postgres mysql"`
	SQLitePath  string `yaml:"sqlitePath" validate:"required_if=Backend sqlite"`
	PostgresURL string `yaml:"postgresURL" validate:"required_if=Backend postgres"`
	MySQLDSN    string `yaml:"mysqlDSN" validate:"required_if=Backend mysql"`
}

type IngestConfig struct {
	HeadsignJoin     string        `yaml:"headsignJoin" validate:"oneof=route legacy"`
	DownloadTimeout  time.Duration `yaml:"downloadTimeout" validate:"gte=0"`
	DownloadMaxMB    int           `yaml:"downloadMaxMB" validate:"gte=0"`
	DownloadCacheTTL time.Duration `yaml:"downloadCacheTTL" validate:"gte=0"`

	// Downloads are cached on disk only when set.
	DownloadCacheDir string `yaml:"downloadCacheDir"`

	// Accept archives whose files sit in a single subdirectory.
	AllowNestedMembers bool `yaml:"allowNestedMembers"`
}

type CacheConfig struct {
	Size int           `yaml:"size" validate:"gte=0"`
	TTL  time.Duration `yaml:"ttl" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadMB:    100,
			RequestTimeout: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Backend:    "sqlite",
			SQLitePath: storage.DefaultSQLitePath,
		},
		Ingest: IngestConfig{
			HeadsignJoin:     string(model.JoinRoute),
			DownloadTimeout:  60 * time.Second,
			DownloadMaxMB:    800,
			DownloadCacheTTL: time.Hour,
		},
		Cache: CacheConfig{
			Size: 16,
			TTL:  5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Loads configuration: defaults, then the YAML file at path, then
// environment variables (a .env file in the working directory is
// honored). If path is empty, DefaultPath is read if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if port, ok := lookup("PORT"); ok && port != "" {
		c.Server.Addr = ":" + port
	}
	str("GTFSIMPORT_ADDR", &c.Server.Addr)
	str("GTFSIMPORT_STORAGE", &c.Storage.Backend)
	str("GTFSIMPORT_SQLITE_PATH", &c.Storage.SQLitePath)
	str("GTFSIMPORT_POSTGRES_URL", &c.Storage.PostgresURL)
	str("GTFSIMPORT_MYSQL_DSN", &c.Storage.MySQLDSN)
	str("GTFSIMPORT_HEADSIGN_JOIN", &c.Ingest.HeadsignJoin)
	str("GTFSIMPORT_CACHE_DIR", &c.Ingest.DownloadCacheDir)
	str("GTFSIMPORT_LOG_LEVEL", &c.Log.Level)
	str("GTFSIMPORT_LOG_FORMAT", &c.Log.Format)

	// MariaDB settings in the DB_* style, when no DSN is given.
	if c.Storage.Backend == "mysql" && c.Storage.MySQLDSN == "" {
		mc := storage.MySQLConfig{}
		str("DB_HOST", &mc.Host)
		str("DB_USER", &mc.User)
		str("DB_PASS", &mc.Password)
		str("DB_NAME", &mc.DBName)
		if v, ok := lookup("DB_PORT"); ok && v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid DB_PORT %q: %w", v, err)
			}
			mc.Port = port
		}
		if mc.DBName != "" {
			c.Storage.MySQLDSN = mc.FormatDSN()
		}
	}

	return nil
}

func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) JoinMode() model.JoinMode {
	join, err := model.ParseJoinMode(c.Ingest.HeadsignJoin)
	if err != nil {
		return model.JoinRoute
	}
	return join
}

// Opens the configured storage backend.
func (c StorageConfig) Open() (storage.Storage, error) {
	switch c.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		return storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Path: c.SQLitePath})
	case "postgres":
		return storage.NewPSQLStorage(c.PostgresURL, false)
	case "mysql":
		return storage.NewMySQLStorage(storage.MySQLConfig{DSN: c.MySQLDSN}, false)
	}
	return nil, fmt.Errorf("unknown storage backend %q", c.Backend)
}

func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
