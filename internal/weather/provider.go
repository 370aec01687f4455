package weather

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRecordExists is returned by an Archive when the target filename is
	// already taken. Existing records are never overwritten.
	ErrRecordExists = errors.New("archive record already exists")

	// ErrRecordNotFound is returned by Archive queries that match nothing.
	ErrRecordNotFound = errors.New("no matching archive records")

	// ErrWriteFailed wraps filesystem failures while writing a record
	// (disk full, permissions). No partial file is left behind.
	ErrWriteFailed = errors.New("archive write failed")
)

// Provider abstracts the upstream weather API for a single record kind fetch.
// The returned payload is opaque; this core never interprets it.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc Location, kind RecordKind) ([]byte, error)
}

// HistoryProvider is an optional Provider capability for fetching one day of
// historical data (daily summary plus per-minute observations).
type HistoryProvider interface {
	FetchHistory(ctx context.Context, loc Location, day time.Time) (HistoryDay, error)
}

// Archive is the contract the filesystem archive (and any future backend)
// must satisfy.
type Archive interface {
	Write(rec ArchiveRecord) (RecordMeta, error)
	ExistsHour(loc Location, kind RecordKind, at time.Time) bool
	ExistsDay(loc Location, day time.Time) bool
	List(loc Location, kind RecordKind, from, to time.Time) ([]RecordMeta, error)
	Latest(loc Location, kind RecordKind) (RecordMeta, error)
	Read(meta RecordMeta) ([]byte, error)
}

// RunStore keeps recent cycle results for the read-only API.
type RunStore interface {
	SaveRun(loc Location, run CycleResult)
	LatestRun(loc Location) (CycleResult, error)
	RunRange(loc Location, from, to time.Time) ([]CycleResult, error)
}
