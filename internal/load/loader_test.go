package load

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/music-importer/internal/identity"
	"github.com/franz/music-importer/internal/sidecar"
	"github.com/franz/music-importer/internal/store"
	"github.com/franz/music-importer/internal/util"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tracks.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func finalDoc(hash, path string) *sidecar.FinalDoc {
	return &sidecar.FinalDoc{
		Schema: sidecar.FinalSchemaInfo{
			Type:    sidecar.FinalSchemaType,
			Version: sidecar.FinalSchemaVersion,
			Sources: sidecar.SourceInfo{
				Match:    sidecar.SchemaInfo{Type: sidecar.MatchSchemaType, Version: 1},
				Analysis: sidecar.SchemaInfo{Type: sidecar.AnalysisSchemaType, Version: 1},
			},
		},
		File: identity.FileInfo{
			Path:       path,
			Stem:       "track",
			SizeBytes:  4096,
			MtimeUnix:  1700000000,
			HashSHA256: hash,
		},
		LocalTags: sidecar.LocalTags{
			Artist: "Boards of Canada",
			Title:  "Roygbiv",
			Year:   1998,
		},
		Catalog: &sidecar.CatalogTrack{
			ID:      "cat-42",
			Name:    "Roygbiv",
			Artists: []string{"Boards of Canada"},
			Album: sidecar.CatalogAlbum{
				ID:          "alb-7",
				Name:        "Music Has the Right to Children",
				ReleaseDate: "1998-04-20",
			},
			DurationMs: 150000,
		},
		Match:    sidecar.MatchOutcome{Status: sidecar.MatchStatusMatched, ScoreRaw: 0.88, ScorePercent: 88},
		Features: sidecar.Features{Duration: 149.8, Tempo: 67.5},
		Mood:     sidecar.MoodInfo{Valence: 0.72, Arousal: 0.3, Tag: "warm"},
	}
}

func TestLoadInsertThenUpdate(t *testing.T) {
	st := openTestStore(t)

	loader, err := New(st)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	t1 := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC)

	loader.now = func() time.Time { return t1 }
	status, err := loader.Load(finalDoc("hash-1", "/music/track.mp3"), "/music/.track.final.json")
	if err != nil {
		t.Fatalf("first Load failed: %v", err)
	}
	if status != StatusInserted {
		t.Errorf("first load status = %s, want inserted", status)
	}

	loader.now = func() time.Time { return t2 }
	status, err = loader.Load(finalDoc("hash-1", "/music/track.mp3"), "/music/.track.final.json")
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if status != StatusUpdated {
		t.Errorf("second load status = %s, want updated", status)
	}

	count, err := loader.RowCount()
	if err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1 (upsert, not duplicate)", count)
	}

	var addedAt, updatedAt string
	err = st.DB().QueryRow(
		"SELECT added_at, updated_at FROM tracks WHERE file_hash = ?", "hash-1",
	).Scan(&addedAt, &updatedAt)
	if err != nil {
		t.Fatalf("row query failed: %v", err)
	}
	if addedAt != "2026-01-10T08:00:00Z" {
		t.Errorf("added_at = %s, must keep first-load timestamp", addedAt)
	}
	if updatedAt != "2026-02-20T08:00:00Z" {
		t.Errorf("updated_at = %s, must reflect second load", updatedAt)
	}
}

func TestLoadUpsertByHashIgnoresPathChange(t *testing.T) {
	st := openTestStore(t)

	loader, err := New(st)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := loader.Load(finalDoc("hash-1", "/music/old/track.mp3"), ""); err != nil {
		t.Fatalf("first Load failed: %v", err)
	}
	// Same bytes, moved file: the hash keys the row, so this updates rather
	// than inserting.
	if _, err := loader.Load(finalDoc("hash-1", "/music/new/track.mp3"), ""); err != nil {
		t.Fatalf("second Load failed: %v", err)
	}

	count, _ := loader.RowCount()
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}

	var path string
	if err := st.DB().QueryRow("SELECT file_path FROM tracks WHERE file_hash = ?", "hash-1").Scan(&path); err != nil {
		t.Fatalf("row query failed: %v", err)
	}
	if path != "/music/new/track.mp3" {
		t.Errorf("file_path = %s, want updated path", path)
	}
}

func TestLoadColumnResolution(t *testing.T) {
	st := openTestStore(t)

	loader, err := New(st)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := loader.Load(finalDoc("hash-1", "/music/track.mp3"), "/music/.track.final.json"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var (
		title, artist string
		year          int
		durationSec   float64
		catalogID     string
		bpm           float64
		finalPath     string
	)
	err = st.DB().QueryRow(`
		SELECT title, artist, year, duration_sec, catalog_id, bpm, final_json_path
		FROM tracks WHERE file_hash = ?`, "hash-1",
	).Scan(&title, &artist, &year, &durationSec, &catalogID, &bpm, &finalPath)
	if err != nil {
		t.Fatalf("row query failed: %v", err)
	}

	if title != "Roygbiv" || artist != "Boards of Canada" {
		t.Errorf("title/artist = %q/%q", title, artist)
	}
	if year != 1998 {
		t.Errorf("year = %d", year)
	}
	// Local tag evidence is absent, features carry the duration.
	if durationSec != 149.8 {
		t.Errorf("duration_sec = %v", durationSec)
	}
	if catalogID != "cat-42" {
		t.Errorf("catalog_id = %s", catalogID)
	}
	if bpm != 67.5 {
		t.Errorf("bpm = %v", bpm)
	}
	if finalPath != "/music/.track.final.json" {
		t.Errorf("final_json_path = %s", finalPath)
	}
}

func TestLoadCatalogFallback(t *testing.T) {
	st := openTestStore(t)

	loader, err := New(st)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	doc := finalDoc("hash-2", "/music/untitled.mp3")
	doc.LocalTags = sidecar.LocalTags{}
	doc.Features = sidecar.Features{}
	if _, err := loader.Load(doc, ""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var title string
	var year int
	var durationSec float64
	err = st.DB().QueryRow(
		"SELECT title, year, duration_sec FROM tracks WHERE file_hash = ?", "hash-2",
	).Scan(&title, &year, &durationSec)
	if err != nil {
		t.Fatalf("row query failed: %v", err)
	}

	if title != "Roygbiv" {
		t.Errorf("title = %q, want catalog fallback", title)
	}
	if year != 1998 {
		t.Errorf("year = %d, want release-date year", year)
	}
	if durationSec != 150 {
		t.Errorf("duration_sec = %v, want duration_ms/1000", durationSec)
	}
}

func TestExists(t *testing.T) {
	st := openTestStore(t)

	loader, err := New(st)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	doc := finalDoc("hash-1", "/music/track.mp3")
	present, err := loader.Exists(doc)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if present {
		t.Error("row reported present before any load")
	}

	if _, err := loader.Load(doc, ""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	present, err = loader.Exists(doc)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !present {
		t.Error("row reported absent after load")
	}
}

func TestLoadNoUpsertKey(t *testing.T) {
	st := openTestStore(t)

	loader, err := New(st)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	doc := finalDoc("", "")
	_, err = loader.Load(doc, "")
	if !errors.Is(err, util.ErrNoUpsertKey) {
		t.Errorf("expected ErrNoUpsertKey, got %v", err)
	}
}

func TestNewRequiresTracksTable(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.DB().Exec("DROP TABLE tracks"); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	_, err := New(st)
	if !errors.Is(err, util.ErrSchemaMissing) {
		t.Errorf("expected ErrSchemaMissing, got %v", err)
	}
}
