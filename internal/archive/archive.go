// Package archive persists raw fetched payloads as an append-only tree of
// files under {root}/{location}/{kind dir}/{stamp}.json.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wunderlog/wunderlog/internal/weather"
)

// Store is a filesystem-backed archive rooted at a single directory.
type Store struct {
	root string
}

// NewStore creates a Store rooted at dir. The directory is created lazily on
// first write.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Write persists one record. The payload lands in a temp file first and is
// renamed into place, so a failure never leaves a partial record behind.
// An already-existing target returns weather.ErrRecordExists untouched.
func (s *Store) Write(rec weather.ArchiveRecord) (weather.RecordMeta, error) {
	dir, err := s.kindDir(rec.Location, rec.Kind)
	if err != nil {
		return weather.RecordMeta{}, err
	}

	stamp := rec.Kind.Stamp(rec.FetchedAt)
	target := filepath.Join(dir, stamp+".json")

	if _, err := os.Stat(target); err == nil {
		return weather.RecordMeta{}, fmt.Errorf("%w: %s", weather.ErrRecordExists, target)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return weather.RecordMeta{}, fmt.Errorf("%w: %v", weather.ErrWriteFailed, err)
	}

	tmp, err := os.CreateTemp(dir, "."+stamp+"-*.tmp")
	if err != nil {
		return weather.RecordMeta{}, fmt.Errorf("%w: %v", weather.ErrWriteFailed, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(rec.Payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return weather.RecordMeta{}, fmt.Errorf("%w: %v", weather.ErrWriteFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return weather.RecordMeta{}, fmt.Errorf("%w: %v", weather.ErrWriteFailed, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return weather.RecordMeta{}, fmt.Errorf("%w: %v", weather.ErrWriteFailed, err)
	}

	return weather.RecordMeta{
		Location: rec.Location,
		Kind:     rec.Kind,
		Stamp:    rec.FetchedAt.UTC().Truncate(time.Minute),
		Path:     target,
		Size:     int64(len(rec.Payload)),
	}, nil
}

// ExistsHour reports whether a record of the given kind already exists for
// the hour containing at. Used to avoid re-fetching forecasts more than once
// per hour.
func (s *Store) ExistsHour(loc weather.Location, kind weather.RecordKind, at time.Time) bool {
	dir, err := s.kindDir(loc, kind)
	if err != nil {
		return false
	}
	names, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	prefix := weather.HourPrefix(at)
	for _, de := range names {
		if strings.HasPrefix(de.Name(), prefix) {
			return true
		}
	}
	return false
}

// ExistsDay reports whether a daily summary is already archived for day.
func (s *Store) ExistsDay(loc weather.Location, day time.Time) bool {
	dir, err := s.kindDir(loc, weather.KindDaily)
	if err != nil {
		return false
	}
	target := filepath.Join(dir, day.UTC().Format(weather.DayLayout)+".json")
	_, err = os.Stat(target)
	return err == nil
}

// List returns metadata for all records of one kind with stamps between from
// and to (inclusive), ordered by stamp ascending. An empty result is
// weather.ErrRecordNotFound.
func (s *Store) List(loc weather.Location, kind weather.RecordKind, from, to time.Time) ([]weather.RecordMeta, error) {
	metas, err := s.scan(loc, kind)
	if err != nil {
		return nil, err
	}

	var result []weather.RecordMeta
	for _, m := range metas {
		if m.Stamp.Before(from) || m.Stamp.After(to) {
			continue
		}
		result = append(result, m)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: %s/%s between %s and %s",
			weather.ErrRecordNotFound, loc.Key(), kind, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return result, nil
}

// Latest returns the most recently stamped record of one kind.
func (s *Store) Latest(loc weather.Location, kind weather.RecordKind) (weather.RecordMeta, error) {
	metas, err := s.scan(loc, kind)
	if err != nil {
		return weather.RecordMeta{}, err
	}
	return metas[len(metas)-1], nil
}

// Read returns the raw payload for a previously listed record.
func (s *Store) Read(meta weather.RecordMeta) ([]byte, error) {
	data, err := os.ReadFile(meta.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrRecordNotFound, err)
	}
	return data, nil
}

// scan reads one kind directory and parses filenames back into metadata,
// sorted by stamp ascending. Files that do not match the stamp layout
// (temp files, strays) are ignored.
func (s *Store) scan(loc weather.Location, kind weather.RecordKind) ([]weather.RecordMeta, error) {
	dir, err := s.kindDir(loc, kind)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", weather.ErrRecordNotFound, loc.Key(), kind)
	}

	var metas []weather.RecordMeta
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		stamp, err := time.ParseInLocation(kind.StampLayout(), strings.TrimSuffix(name, ".json"), time.UTC)
		if err != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		metas = append(metas, weather.RecordMeta{
			Location: loc,
			Kind:     kind,
			Stamp:    stamp,
			Path:     filepath.Join(dir, name),
			Size:     info.Size(),
		})
	}
	if len(metas) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", weather.ErrRecordNotFound, loc.Key(), kind)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Stamp.Before(metas[j].Stamp) })
	return metas, nil
}

// kindDir maps a location and kind to its directory. Location keys may
// contain slashes (e.g. "norway/asker") which become subdirectories, but
// must stay inside the archive root.
func (s *Store) kindDir(loc weather.Location, kind weather.RecordKind) (string, error) {
	key := loc.Key()
	if key == "" {
		return "", fmt.Errorf("%w: empty location", weather.ErrWriteFailed)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: invalid location %q", weather.ErrWriteFailed, key)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(key), kind.Dir()), nil
}
