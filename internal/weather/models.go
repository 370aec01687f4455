package weather

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RecordKind identifies one class of archived payload. Each kind maps to its
// own subdirectory and filename stamp resolution in the archive.
type RecordKind string

const (
	KindObservation RecordKind = "observation"
	KindForecast    RecordKind = "forecast"
	KindHourly      RecordKind = "hourly"
	KindDaily       RecordKind = "daily"
)

// Stamp layouts. Minute resolution keeps filenames unique for any polling
// interval of one minute or longer; daily summaries are stamped by day only.
const (
	DayLayout   = "2006-01-02"
	StampLayout = "2006-01-02T15-04"
	hourLayout  = "2006-01-02T15"
)

// ParseKind converts a string into a RecordKind.
func ParseKind(s string) (RecordKind, error) {
	switch RecordKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindObservation:
		return KindObservation, nil
	case KindForecast:
		return KindForecast, nil
	case KindHourly:
		return KindHourly, nil
	case KindDaily:
		return KindDaily, nil
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

// ParseKinds converts a comma-separated list into record kinds.
func ParseKinds(s string) ([]RecordKind, error) {
	var kinds []RecordKind
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Dir returns the archive subdirectory for this kind.
func (k RecordKind) Dir() string {
	switch k {
	case KindObservation:
		return "observations"
	case KindForecast:
		return "forecast"
	case KindHourly:
		return "forecast_hourly"
	case KindDaily:
		return "daily"
	}
	return string(k)
}

// Stamp formats t as this kind's archive filename stamp.
func (k RecordKind) Stamp(t time.Time) string {
	if k == KindDaily {
		return t.UTC().Format(DayLayout)
	}
	return t.UTC().Format(StampLayout)
}

// StampLayout returns the time layout used for this kind's stamps.
func (k RecordKind) StampLayout() string {
	if k == KindDaily {
		return DayLayout
	}
	return StampLayout
}

// HourPrefix formats t as the hour-resolution stamp prefix used for
// deduplicating forecast fetches within the same hour.
func HourPrefix(t time.Time) string {
	return t.UTC().Format(hourLayout) + "-"
}

// Location identifies an upstream location query, e.g. "KSEA",
// "Norway/Asker" or "47.60,-122.33". Slashes become archive subdirectories.
type Location struct {
	Query string `json:"query"`
}

// Key returns the canonical string key for indexing this location
// in stores and the archive tree.
func (l Location) Key() string {
	return strings.ToLower(l.Query)
}

// ArchiveRecord is one raw payload fetched from the upstream API,
// written to the archive exactly once and never mutated after.
type ArchiveRecord struct {
	Location  Location
	Kind      RecordKind
	FetchedAt time.Time // always UTC
	Payload   []byte
}

// RecordMeta is the listing view of an archived record: everything about it
// except the payload itself.
type RecordMeta struct {
	Location Location   `json:"location"`
	Kind     RecordKind `json:"kind"`
	Stamp    time.Time  `json:"stamp"`
	Path     string     `json:"path"`
	Size     int64      `json:"size"`
}

// CycleResult describes the outcome of one collect cycle for a location.
type CycleResult struct {
	ID         string       `json:"id"`
	Location   Location     `json:"location"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Archived   []RecordMeta `json:"archived,omitempty"`
	Skipped    int          `json:"skipped"`
	Errors     []string     `json:"errors,omitempty"`
}

// HistoryDay is one day of historical data as returned by the upstream
// history endpoint: a daily summary plus the individual observations that
// produced it. Payloads stay raw; only the observation timestamps are parsed.
type HistoryDay struct {
	Summary      json.RawMessage
	Observations []HistoryObservation
}

// HistoryObservation is a single historical observation with its own timestamp.
type HistoryObservation struct {
	Time    time.Time
	Payload json.RawMessage
}
