package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Service orchestrates fetching raw payloads from the provider and archiving
// them, and records cycle outcomes in the run store.
type Service struct {
	provider Provider
	archive  Archive
	runs     RunStore
	kinds    []RecordKind

	// now is swappable in tests.
	now func() time.Time
}

// NewService creates a new Service collecting the given record kinds.
func NewService(provider Provider, archive Archive, runs RunStore, kinds []RecordKind) *Service {
	return &Service{
		provider: provider,
		archive:  archive,
		runs:     runs,
		kinds:    kinds,
		now:      time.Now,
	}
}

// FetchAndArchive performs one fetch for a single record kind and writes the
// payload to the archive. Exactly one file is written on success; no file is
// written on any failure path.
func (s *Service) FetchAndArchive(ctx context.Context, loc Location, kind RecordKind) (RecordMeta, error) {
	payload, err := s.provider.Fetch(ctx, loc, kind)
	if err != nil {
		return RecordMeta{}, fmt.Errorf("fetching %s for %s: %w", kind, loc.Key(), err)
	}

	return s.archive.Write(ArchiveRecord{
		Location:  loc,
		Kind:      kind,
		FetchedAt: s.now().UTC(),
		Payload:   payload,
	})
}

// Collect runs one full cycle for a location: every configured kind in
// order. Forecast kinds already archived within the current hour are
// skipped; observations are always fetched; the daily kind archives
// yesterday's history once. A failing kind is logged and recorded but never
// aborts the remaining kinds. The returned error joins all kind failures so
// callers can match sentinels with errors.Is.
func (s *Service) Collect(ctx context.Context, loc Location) (CycleResult, error) {
	res := CycleResult{
		ID:        uuid.NewString(),
		Location:  loc,
		StartedAt: s.now().UTC(),
	}

	var errs []error
	for _, kind := range s.kinds {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			res.Errors = append(res.Errors, ctx.Err().Error())
			break
		}

		archived, skipped, err := s.collectKind(ctx, loc, kind)
		res.Archived = append(res.Archived, archived...)
		res.Skipped += skipped
		if err != nil {
			log.Printf("service: collect %s for %s: %v", kind, loc.Key(), err)
			errs = append(errs, err)
			res.Errors = append(res.Errors, err.Error())
		}
	}

	res.FinishedAt = s.now().UTC()
	if s.runs != nil {
		s.runs.SaveRun(loc, res)
	}
	return res, errors.Join(errs...)
}

func (s *Service) collectKind(ctx context.Context, loc Location, kind RecordKind) (archived []RecordMeta, skipped int, err error) {
	switch kind {
	case KindDaily:
		// Yesterday's history, once.
		return s.collectDay(ctx, loc, s.now().UTC().AddDate(0, 0, -1))

	case KindForecast, KindHourly:
		if s.archive.ExistsHour(loc, kind, s.now()) {
			log.Printf("service: already have %s for %s this hour", kind, loc.Key())
			return nil, 1, nil
		}
	}

	meta, err := s.FetchAndArchive(ctx, loc, kind)
	if errors.Is(err, ErrRecordExists) {
		return nil, 1, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return []RecordMeta{meta}, 0, nil
}

// collectDay archives one day of history: the daily summary under the daily
// kind, plus each observation stamped with its own time. Days already
// archived are skipped without a fetch.
func (s *Service) collectDay(ctx context.Context, loc Location, day time.Time) (archived []RecordMeta, skipped int, err error) {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	if s.archive.ExistsDay(loc, day) {
		log.Printf("service: already have daily summary for %s on %s", loc.Key(), day.Format(DayLayout))
		return nil, 1, nil
	}

	hp, ok := s.provider.(HistoryProvider)
	if !ok {
		return nil, 0, fmt.Errorf("provider %s does not support history", s.provider.Name())
	}

	hist, err := hp.FetchHistory(ctx, loc, day)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching history for %s on %s: %w", loc.Key(), day.Format(DayLayout), err)
	}

	meta, err := s.archive.Write(ArchiveRecord{
		Location:  loc,
		Kind:      KindDaily,
		FetchedAt: day,
		Payload:   hist.Summary,
	})
	switch {
	case errors.Is(err, ErrRecordExists):
		skipped++
	case err != nil:
		return nil, skipped, err
	default:
		archived = append(archived, meta)
	}

	for _, obs := range hist.Observations {
		meta, err := s.archive.Write(ArchiveRecord{
			Location:  loc,
			Kind:      KindObservation,
			FetchedAt: obs.Time,
			Payload:   obs.Payload,
		})
		if errors.Is(err, ErrRecordExists) {
			skipped++
			continue
		}
		if err != nil {
			return archived, skipped, err
		}
		archived = append(archived, meta)
	}
	return archived, skipped, nil
}

// Backfill walks up to days back from yesterday and archives history for
// every day not yet present. Cancellation is honoured between days.
func (s *Service) Backfill(ctx context.Context, loc Location, days int) error {
	if days <= 0 {
		return fmt.Errorf("backfill days must be greater than zero")
	}

	today := s.now().UTC()
	var errs []error
	for i := days; i > 0; i-- {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		day := today.AddDate(0, 0, -i)
		archived, skipped, err := s.collectDay(ctx, loc, day)
		if err != nil {
			log.Printf("service: backfill %s for %s: %v", day.Format(DayLayout), loc.Key(), err)
			errs = append(errs, err)
			continue
		}
		log.Printf("service: backfill %s for %s: %d archived, %d skipped",
			day.Format(DayLayout), loc.Key(), len(archived), skipped)
	}
	return errors.Join(errs...)
}

// Records delegates to the archive.
func (s *Service) Records(loc Location, kind RecordKind, from, to time.Time) ([]RecordMeta, error) {
	return s.archive.List(loc, kind, from, to)
}

// LatestRecord delegates to the archive.
func (s *Service) LatestRecord(loc Location, kind RecordKind) (RecordMeta, error) {
	return s.archive.Latest(loc, kind)
}

// ReadPayload delegates to the archive.
func (s *Service) ReadPayload(meta RecordMeta) ([]byte, error) {
	return s.archive.Read(meta)
}

// LatestRun delegates to the run store.
func (s *Service) LatestRun(loc Location) (CycleResult, error) {
	return s.runs.LatestRun(loc)
}

// RunRange delegates to the run store.
func (s *Service) RunRange(loc Location, from, to time.Time) ([]CycleResult, error) {
	return s.runs.RunRange(loc, from, to)
}
