package config

import (
	"strings"
	"testing"
	"time"

	"github.com/wunderlog/wunderlog/internal/weather"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WEATHER_LOCATIONS", "KSEA,Norway/Asker")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIBaseURL != "https://api.wunderground.com" {
		t.Fatalf("got base url %q", cfg.APIBaseURL)
	}
	if cfg.NetrcMachine != "api.wunderground.com" {
		t.Fatalf("got netrc machine %q", cfg.NetrcMachine)
	}
	if cfg.FetchInterval != time.Hour {
		t.Fatalf("got interval %s, want 1h", cfg.FetchInterval)
	}
	if cfg.MaxRetries != 3 || cfg.InitialBackoff != 500*time.Millisecond || cfg.MaxBackoff != 5*time.Second {
		t.Fatalf("unexpected retry defaults: %d %s %s", cfg.MaxRetries, cfg.InitialBackoff, cfg.MaxBackoff)
	}
	if cfg.CacheTTL != 55*time.Minute {
		t.Fatalf("got cache ttl %s, want 55m", cfg.CacheTTL)
	}
	if len(cfg.Locations) != 2 || cfg.Locations[0].Query != "KSEA" || cfg.Locations[1].Query != "Norway/Asker" {
		t.Fatalf("unexpected locations: %+v", cfg.Locations)
	}
	if len(cfg.Kinds) != 4 {
		t.Fatalf("got %d default kinds, want 4", len(cfg.Kinds))
	}
}

func TestLoadCustomKinds(t *testing.T) {
	t.Setenv("WEATHER_LOCATIONS", "KSEA")
	t.Setenv("WEATHER_KINDS", "observation,forecast")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []weather.RecordKind{weather.KindObservation, weather.KindForecast}
	if len(cfg.Kinds) != 2 || cfg.Kinds[0] != want[0] || cfg.Kinds[1] != want[1] {
		t.Fatalf("got kinds %v, want %v", cfg.Kinds, want)
	}
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	t.Setenv("WEATHER_LOCATIONS", "KSEA")
	t.Setenv("WEATHER_KINDS", "observation,bogus")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unknown kind")
	}
}

func TestLoadEnforcesIntervalFloor(t *testing.T) {
	t.Setenv("WEATHER_LOCATIONS", "KSEA")
	t.Setenv("FETCH_INTERVAL", "30s")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "at least 1m") {
		t.Fatalf("got %v, want interval floor error", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("WEATHER_LOCATIONS", "KSEA")
	t.Setenv("HTTP_TIMEOUT", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a bad duration")
	}
}

func TestLoadGeoEntryNeedsGeocoderKey(t *testing.T) {
	t.Setenv("WEATHER_LOCATIONS", "geo:Asker/Norway")
	t.Setenv("GEOCODER_API_KEY", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "GEOCODER_API_KEY") {
		t.Fatalf("got %v, want geocoder key error", err)
	}
}
