package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBDriver string `long:"db-driver" env:"DB_DRIVER" default:"sqlite" choice:"sqlite" choice:"postgres" description:"Database driver"`
	DBDSN    string `long:"db-dsn" env:"DB_DSN" default:"./data/listings.db" description:"Database DSN (file path for sqlite, connection URL for postgres)"`

	// Application configuration
	RulesDir        string `long:"rules-dir" env:"RULES_DIR" default:"./rules" description:"Directory containing miscategorization rule files"`
	Port            string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl         string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://listings.example.com)"`
	WorkerCount     int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers"`
	RefreshInterval int    `long:"refresh-interval" env:"REFRESH_INTERVAL" default:"300" description:"Feed rebuild interval in seconds"`
	SectionTimeout  int    `long:"section-timeout" env:"SECTION_TIMEOUT" default:"10" description:"Per-section listing fetch timeout in seconds"`
	PageSize        int    `long:"page-size" env:"PAGE_SIZE" default:"20" description:"Listings per feed section"`
	APIAccessKey    string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Snapshot cache
	RedisAddr   string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the shared feed snapshot (in-memory when empty)"`
	SnapshotTTL int    `long:"snapshot-ttl" env:"SNAPSHOT_TTL" default:"1800" description:"Feed snapshot TTL in Redis, in seconds"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Africa/Algiers)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load reads .env when present, then flags and environment.
func Load() (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validate(&raw); err != nil {
		return nil, err
	}

	cfg := &Cfg{
		DBDriver:        raw.DBDriver,
		DBDSN:           raw.DBDSN,
		RulesDir:        raw.RulesDir,
		Port:            raw.Port,
		BaseUrl:         raw.BaseUrl,
		WorkerCount:     raw.WorkerCount,
		RefreshInterval: time.Duration(raw.RefreshInterval) * time.Second,
		SectionTimeout:  time.Duration(raw.SectionTimeout) * time.Second,
		PageSize:        raw.PageSize,
		APIAccessKey:    raw.APIAccessKey,
		RedisAddr:       raw.RedisAddr,
		SnapshotTTL:     time.Duration(raw.SnapshotTTL) * time.Second,
		Timezone:        raw.Timezone,
		Debug:           raw.Debug,
		Version:         GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(raw *rawCfg) error {
	if raw.DBDSN == "" {
		return fmt.Errorf("db-dsn must not be empty")
	}
	if raw.WorkerCount < 1 {
		return fmt.Errorf("worker-count must be at least 1, got %d", raw.WorkerCount)
	}
	if raw.RefreshInterval < 1 {
		return fmt.Errorf("refresh-interval must be at least 1 second, got %d", raw.RefreshInterval)
	}
	if raw.SectionTimeout < 1 {
		return fmt.Errorf("section-timeout must be at least 1 second, got %d", raw.SectionTimeout)
	}
	if raw.PageSize < 1 {
		return fmt.Errorf("page-size must be at least 1, got %d", raw.PageSize)
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
		slog.Debug("Timezone configured", "timezone", timezone)
	}
	return nil
}
