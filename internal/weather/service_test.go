package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// fakeProvider scripts per-kind payloads and failures.
type fakeProvider struct {
	payloads     map[RecordKind][]byte
	failKinds    map[RecordKind]error
	fetches      int
	historyDays  map[string]HistoryDay
	historyCalls int
	historyErr   error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Fetch(ctx context.Context, loc Location, kind RecordKind) ([]byte, error) {
	f.fetches++
	if err := f.failKinds[kind]; err != nil {
		return nil, err
	}
	p, ok := f.payloads[kind]
	if !ok {
		return nil, fmt.Errorf("no scripted payload for %s", kind)
	}
	return p, nil
}

func (f *fakeProvider) FetchHistory(ctx context.Context, loc Location, day time.Time) (HistoryDay, error) {
	f.historyCalls++
	if f.historyErr != nil {
		return HistoryDay{}, f.historyErr
	}
	h, ok := f.historyDays[day.Format(DayLayout)]
	if !ok {
		return HistoryDay{}, fmt.Errorf("no scripted history for %s", day.Format(DayLayout))
	}
	return h, nil
}

// fakeArchive keeps records in a map keyed the way the filesystem store
// names files.
type fakeArchive struct {
	files     map[string][]byte
	failWrite error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{files: make(map[string][]byte)}
}

func (a *fakeArchive) key(loc Location, kind RecordKind, stamp string) string {
	return loc.Key() + "/" + kind.Dir() + "/" + stamp
}

func (a *fakeArchive) Write(rec ArchiveRecord) (RecordMeta, error) {
	key := a.key(rec.Location, rec.Kind, rec.Kind.Stamp(rec.FetchedAt))
	if _, exists := a.files[key]; exists {
		return RecordMeta{}, fmt.Errorf("%w: %s", ErrRecordExists, key)
	}
	if a.failWrite != nil {
		return RecordMeta{}, a.failWrite
	}
	a.files[key] = rec.Payload
	return RecordMeta{
		Location: rec.Location,
		Kind:     rec.Kind,
		Stamp:    rec.FetchedAt.UTC().Truncate(time.Minute),
		Path:     key,
		Size:     int64(len(rec.Payload)),
	}, nil
}

func (a *fakeArchive) ExistsHour(loc Location, kind RecordKind, at time.Time) bool {
	prefix := a.key(loc, kind, HourPrefix(at))
	for key := range a.files {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (a *fakeArchive) ExistsDay(loc Location, day time.Time) bool {
	_, ok := a.files[a.key(loc, KindDaily, day.UTC().Format(DayLayout))]
	return ok
}

func (a *fakeArchive) List(loc Location, kind RecordKind, from, to time.Time) ([]RecordMeta, error) {
	return nil, ErrRecordNotFound
}

func (a *fakeArchive) Latest(loc Location, kind RecordKind) (RecordMeta, error) {
	return RecordMeta{}, ErrRecordNotFound
}

func (a *fakeArchive) Read(meta RecordMeta) ([]byte, error) {
	data, ok := a.files[meta.Path]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return data, nil
}

// fakeRuns records saved cycles.
type fakeRuns struct {
	saved []CycleResult
}

func (r *fakeRuns) SaveRun(loc Location, run CycleResult) { r.saved = append(r.saved, run) }
func (r *fakeRuns) LatestRun(loc Location) (CycleResult, error) {
	if len(r.saved) == 0 {
		return CycleResult{}, errors.New("empty")
	}
	return r.saved[len(r.saved)-1], nil
}
func (r *fakeRuns) RunRange(loc Location, from, to time.Time) ([]CycleResult, error) {
	return r.saved, nil
}

var testLoc = Location{Query: "KSEA"}

func testService(p Provider, a Archive, r RunStore, kinds []RecordKind, now time.Time) *Service {
	s := NewService(p, a, r, kinds)
	current := now
	s.now = func() time.Time { return current }
	return s
}

func TestCollectArchivesConfiguredKinds(t *testing.T) {
	provider := &fakeProvider{payloads: map[RecordKind][]byte{
		KindObservation: []byte(`{"o":1}`),
		KindForecast:    []byte(`{"f":1}`),
		KindHourly:      []byte(`{"h":1}`),
	}}
	arch := newFakeArchive()
	runs := &fakeRuns{}
	now := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	svc := testService(provider, arch, runs, []RecordKind{KindObservation, KindForecast, KindHourly}, now)

	res, err := svc.Collect(context.Background(), testLoc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Archived) != 3 || res.Skipped != 0 || len(res.Errors) != 0 {
		t.Fatalf("got archived=%d skipped=%d errors=%d, want 3/0/0",
			len(res.Archived), res.Skipped, len(res.Errors))
	}
	if res.ID == "" {
		t.Fatal("cycle result has no id")
	}
	if len(runs.saved) != 1 {
		t.Fatalf("got %d saved runs, want 1", len(runs.saved))
	}
	if len(arch.files) != 3 {
		t.Fatalf("got %d archive files, want 3", len(arch.files))
	}
}

func TestCollectSkipsForecastsWithinSameHour(t *testing.T) {
	provider := &fakeProvider{payloads: map[RecordKind][]byte{
		KindObservation: []byte(`{"o":1}`),
		KindForecast:    []byte(`{"f":1}`),
		KindHourly:      []byte(`{"h":1}`),
	}}
	arch := newFakeArchive()
	now := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	svc := testService(provider, arch, &fakeRuns{}, []RecordKind{KindObservation, KindForecast, KindHourly}, now)

	if _, err := svc.Collect(context.Background(), testLoc); err != nil {
		t.Fatalf("first collect: %v", err)
	}

	// Second run 20 minutes later, same hour: forecasts are skipped,
	// the observation is fetched again under a new stamp.
	svc.now = func() time.Time { return now.Add(20 * time.Minute) }
	res, err := svc.Collect(context.Background(), testLoc)
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	if res.Skipped != 2 {
		t.Fatalf("got %d skipped, want 2 (forecast and hourly)", res.Skipped)
	}
	if len(res.Archived) != 1 || res.Archived[0].Kind != KindObservation {
		t.Fatalf("second collect archived %+v, want one observation", res.Archived)
	}
	if len(arch.files) != 4 {
		t.Fatalf("got %d archive files, want 4", len(arch.files))
	}
}

func TestCollectFailedKindDoesNotAbortOthers(t *testing.T) {
	fetchErr := errors.New("upstream down")
	provider := &fakeProvider{
		payloads: map[RecordKind][]byte{
			KindObservation: []byte(`{"o":1}`),
			KindHourly:      []byte(`{"h":1}`),
		},
		failKinds: map[RecordKind]error{KindForecast: fetchErr},
	}
	arch := newFakeArchive()
	now := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	svc := testService(provider, arch, &fakeRuns{}, []RecordKind{KindObservation, KindForecast, KindHourly}, now)

	res, err := svc.Collect(context.Background(), testLoc)
	if !errors.Is(err, fetchErr) {
		t.Fatalf("got %v, want wrapped fetch error", err)
	}
	if len(res.Archived) != 2 {
		t.Fatalf("got %d archived, want 2 despite the forecast failure", len(res.Archived))
	}
	if len(res.Errors) != 1 {
		t.Fatalf("got %d recorded errors, want 1", len(res.Errors))
	}
}

func TestCollectWritesNothingWhenAllFetchesFail(t *testing.T) {
	fetchErr := errors.New("upstream down")
	provider := &fakeProvider{failKinds: map[RecordKind]error{
		KindObservation: fetchErr,
		KindForecast:    fetchErr,
	}}
	arch := newFakeArchive()
	now := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	svc := testService(provider, arch, &fakeRuns{}, []RecordKind{KindObservation, KindForecast}, now)

	if _, err := svc.Collect(context.Background(), testLoc); err == nil {
		t.Fatal("expected an error")
	}
	if len(arch.files) != 0 {
		t.Fatalf("got %d archive files, want 0", len(arch.files))
	}
}

func TestFetchAndArchivePropagatesWriteFailure(t *testing.T) {
	provider := &fakeProvider{payloads: map[RecordKind][]byte{KindObservation: []byte("x")}}
	arch := newFakeArchive()
	arch.failWrite = fmt.Errorf("%w: disk full", ErrWriteFailed)
	now := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	svc := testService(provider, arch, &fakeRuns{}, nil, now)

	_, err := svc.FetchAndArchive(context.Background(), testLoc, KindObservation)
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("got %v, want ErrWriteFailed", err)
	}
	if len(arch.files) != 0 {
		t.Fatal("write failure left a file behind")
	}
}

func historyFor(day string, times ...time.Time) HistoryDay {
	h := HistoryDay{Summary: json.RawMessage(`{"summary":"` + day + `"}`)}
	for _, ts := range times {
		h.Observations = append(h.Observations, HistoryObservation{
			Time:    ts,
			Payload: json.RawMessage(`{"at":"` + ts.Format(time.RFC3339) + `"}`),
		})
	}
	return h
}

func TestBackfillArchivesMissingDays(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	d1 := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	provider := &fakeProvider{historyDays: map[string]HistoryDay{
		"2026-08-23": historyFor("2026-08-23", d1.Add(20*time.Minute), d1.Add(50*time.Minute)),
		"2026-08-24": historyFor("2026-08-24", d2.Add(10*time.Minute)),
	}}
	arch := newFakeArchive()
	svc := testService(provider, arch, &fakeRuns{}, nil, now)

	if err := svc.Backfill(context.Background(), testLoc, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 2 daily summaries + 3 split observations.
	if len(arch.files) != 5 {
		t.Fatalf("got %d archive files, want 5", len(arch.files))
	}
	if provider.historyCalls != 2 {
		t.Fatalf("got %d history fetches, want 2", provider.historyCalls)
	}

	// Re-running skips every day without a fetch.
	if err := svc.Backfill(context.Background(), testLoc, 2); err != nil {
		t.Fatalf("second backfill: %v", err)
	}
	if provider.historyCalls != 2 {
		t.Fatalf("second backfill refetched history: %d calls", provider.historyCalls)
	}
}

func TestDailyCollectUsesHistory(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	yesterday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	provider := &fakeProvider{historyDays: map[string]HistoryDay{
		"2026-08-24": historyFor("2026-08-24", yesterday.Add(30*time.Minute)),
	}}
	arch := newFakeArchive()
	svc := testService(provider, arch, &fakeRuns{}, []RecordKind{KindDaily}, now)

	res, err := svc.Collect(context.Background(), testLoc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Archived) != 2 {
		t.Fatalf("got %d archived, want daily summary plus one observation", len(res.Archived))
	}
	if !arch.ExistsDay(testLoc, yesterday) {
		t.Fatal("daily summary missing from archive")
	}

	// Same cycle again: the day is already archived.
	res, err = svc.Collect(context.Background(), testLoc)
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	if res.Skipped != 1 || len(res.Archived) != 0 {
		t.Fatalf("got skipped=%d archived=%d, want 1/0", res.Skipped, len(res.Archived))
	}
}
