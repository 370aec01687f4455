package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/wunderlog/wunderlog/internal/weather"
)

var validate = validator.New()

type AppConfig struct {
	// Upstream API. APIKey, when set, overrides the netrc credential.
	APIBaseURL string `validate:"required,url"`
	APIKey     string

	// Credential store.
	NetrcPath    string `validate:"required"`
	NetrcMachine string `validate:"required,hostname"`

	// Archive directory.
	ArchiveDir string `validate:"required"`

	// Locations to collect and which record kinds to fetch each cycle.
	Locations []weather.Location
	Kinds     []weather.RecordKind

	// FetchInterval controls how often a collect cycle runs per location.
	// Must be at least a minute so archive filenames stay unique.
	FetchInterval time.Duration

	// Outbound HTTP and resilience settings.
	HTTPTimeout    time.Duration
	MaxRetries     int `validate:"min=0"`
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	CacheTTL       time.Duration

	// Days of history to fetch in backfill mode.
	BackfillDays int `validate:"min=0"`

	// In-memory run history retention.
	StoreMaxHistory int           // max number of runs per location (0 = unlimited)
	StoreMaxAge     time.Duration // max age of runs (0 = unlimited)

	Port string

	// Google geocoding key, needed only for geo: location entries.
	GeocoderAPIKey string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.APIBaseURL = getenvDefault("WUNDERGROUND_API_URL", "https://api.wunderground.com")
	cfg.APIKey = os.Getenv("WUNDERGROUND_API_KEY")
	cfg.NetrcMachine = getenvDefault("NETRC_MACHINE", "api.wunderground.com")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	netrcPath := os.Getenv("NETRC_PATH")
	if netrcPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory for netrc: %w", err)
		}
		netrcPath = filepath.Join(home, ".netrc")
	}
	cfg.NetrcPath = netrcPath

	cfg.ArchiveDir = getenvDefault("ARCHIVE_DIR", "archive")

	var err error
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.FetchInterval < time.Minute {
		return nil, fmt.Errorf("FETCH_INTERVAL must be at least 1m, got %s", cfg.FetchInterval)
	}

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	cfg.MaxRetries = getenvInt("FETCH_MAX_RETRIES", 3)
	if cfg.InitialBackoff, err = getenvDuration("FETCH_BACKOFF_INITIAL", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.MaxBackoff, err = getenvDuration("FETCH_BACKOFF_MAX", 5*time.Second); err != nil {
		return nil, err
	}
	// Just under an hour, so hourly cycles always go back upstream.
	if cfg.CacheTTL, err = getenvDuration("RESPONSE_CACHE_TTL", 55*time.Minute); err != nil {
		return nil, err
	}

	cfg.BackfillDays = getenvInt("BACKFILL_DAYS", 7)

	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 96) // roughly four days of hourly cycles
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.Port = getenvDefault("PORT", "8080")

	kinds, err := weather.ParseKinds(getenvDefault("WEATHER_KINDS", "observation,forecast,hourly,daily"))
	if err != nil {
		return nil, fmt.Errorf("invalid WEATHER_KINDS: %w", err)
	}
	cfg.Kinds = kinds

	locs, err := loadLocations(cfg.GeocoderAPIKey)
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadLocations parses WEATHER_LOCATIONS, resolving geo: entries through the
// geocoder.
func loadLocations(geocoderKey string) ([]weather.Location, error) {
	raw := os.Getenv("WEATHER_LOCATIONS")
	if raw == "" {
		return nil, nil
	}

	var locs []weather.Location
	for _, entry := range strings.Split(raw, ",") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		loc, err := weather.ResolveQuery(entry, geocoderKey)
		if err != nil {
			return nil, fmt.Errorf("invalid WEATHER_LOCATIONS entry: %w", err)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
