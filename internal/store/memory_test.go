package store

import (
	"errors"
	"testing"
	"time"

	"github.com/wunderlog/wunderlog/internal/weather"
)

var loc = weather.Location{Query: "KSEA"}

func run(id string, startedAt time.Time) weather.CycleResult {
	return weather.CycleResult{ID: id, Location: loc, StartedAt: startedAt, FinishedAt: startedAt}
}

func TestLatestRun(t *testing.T) {
	s := NewMemoryStore(10, 0)

	if _, err := s.LatestRun(loc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound on empty store", err)
	}

	now := time.Now().UTC()
	s.SaveRun(loc, run("a", now.Add(-time.Hour)))
	s.SaveRun(loc, run("b", now))

	latest, err := s.LatestRun(loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.ID != "b" {
		t.Fatalf("got run %q, want b", latest.ID)
	}
}

func TestRunRange(t *testing.T) {
	s := NewMemoryStore(10, 0)
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		s.SaveRun(loc, run(id, base.Add(time.Duration(i)*time.Hour)))
	}

	runs, err := s.RunRange(loc, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "a" || runs[1].ID != "b" {
		t.Fatalf("got %d runs, want [a b]", len(runs))
	}

	if _, err := s.RunRange(loc, base.Add(10*time.Hour), base.Add(11*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound for empty range", err)
	}
}

func TestRetentionByCount(t *testing.T) {
	s := NewMemoryStore(2, 0)
	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		s.SaveRun(loc, run(id, base.Add(time.Duration(i)*time.Minute)))
	}

	runs, err := s.RunRange(loc, base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "b" {
		t.Fatalf("retention by count kept %d runs starting at %q, want 2 starting at b", len(runs), runs[0].ID)
	}
}

func TestRetentionByAge(t *testing.T) {
	s := NewMemoryStore(0, time.Hour)
	now := time.Now().UTC()
	s.SaveRun(loc, run("old", now.Add(-2*time.Hour)))
	s.SaveRun(loc, run("new", now))

	runs, err := s.RunRange(loc, now.Add(-3*time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "new" {
		t.Fatalf("retention by age kept %d runs, want only the fresh one", len(runs))
	}
}
