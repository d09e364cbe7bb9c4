package sidecar

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/music-importer/internal/util"
)

// Store answers existence, staleness and read/write questions about stage
// sidecars. The orchestrator depends only on this interface, so the
// file-based convention could be swapped for an embedded ledger without
// touching the state machine.
type Store interface {
	// PathFor returns the sidecar path for a track and stage.
	PathFor(trackPath string, stage Stage) string

	// Exists reports whether the sidecar for (track, stage) is present.
	Exists(trackPath string, stage Stage) bool

	// IsNewerThan reports whether stage a's sidecar has a strictly newer
	// modification time than stage b's. Returns false when either is
	// missing.
	IsNewerThan(trackPath string, a, b Stage) bool

	// ReadMatch, ReadAnalysis and ReadFinal decode and validate a stage
	// sidecar. A missing sidecar yields util.ErrNotFound; an unparsable or
	// schema-invalid one yields util.ErrMalformedDocument.
	ReadMatch(trackPath string) (*MatchDoc, error)
	ReadAnalysis(trackPath string) (*AnalysisDoc, error)
	ReadFinal(trackPath string) (*FinalDoc, error)

	// Write persists doc as the sidecar for (track, stage), atomically
	// replacing any previous one.
	Write(trackPath string, stage Stage, doc any) error
}

// FileStore implements Store with hidden JSON files co-located with each
// track.
type FileStore struct {
	retry *util.RetryConfig
}

// NewFileStore returns a Store backed by hidden sidecar files.
func NewFileStore() *FileStore {
	return &FileStore{retry: util.DefaultRetryConfig()}
}

// PathFor derives the sidecar path for a track and stage:
//
//	/music/Artist/Track.flac + match -> /music/Artist/.Track.match.json
//
// The name depends only on the track path and the stage suffix, so the
// association survives copies and moves of the collection.
func (s *FileStore) PathFor(trackPath string, stage Stage) string {
	dir := filepath.Dir(trackPath)
	base := filepath.Base(trackPath)
	stem := base[:len(base)-len(filepath.Ext(base))]
	return filepath.Join(dir, "."+stem+stage.Suffix())
}

// Exists reports whether the sidecar for (track, stage) is present.
func (s *FileStore) Exists(trackPath string, stage Stage) bool {
	_, err := os.Stat(s.PathFor(trackPath, stage))
	return err == nil
}

// IsNewerThan compares sidecar modification times.
func (s *FileStore) IsNewerThan(trackPath string, a, b Stage) bool {
	ma, err := s.modTime(trackPath, a)
	if err != nil {
		return false
	}
	mb, err := s.modTime(trackPath, b)
	if err != nil {
		return false
	}
	return ma.After(mb)
}

func (s *FileStore) modTime(trackPath string, stage Stage) (time.Time, error) {
	info, err := os.Stat(s.PathFor(trackPath, stage))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// ReadMatch decodes and validates the MATCH sidecar for a track.
func (s *FileStore) ReadMatch(trackPath string) (*MatchDoc, error) {
	var doc MatchDoc
	if err := s.read(trackPath, StageMatch, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReadAnalysis decodes and validates the ANALYZE sidecar for a track.
func (s *FileStore) ReadAnalysis(trackPath string) (*AnalysisDoc, error) {
	var doc AnalysisDoc
	if err := s.read(trackPath, StageAnalysis, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReadFinal decodes and validates the final sidecar for a track.
func (s *FileStore) ReadFinal(trackPath string) (*FinalDoc, error) {
	var doc FinalDoc
	if err := s.read(trackPath, StageFinal, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *FileStore) read(trackPath string, stage Stage, out any) error {
	path := s.PathFor(trackPath, stage)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", util.ErrNotFound, path)
		}
		return fmt.Errorf("failed to read sidecar %s: %w", path, err)
	}

	// Schema validation first: a truncated or hand-edited sidecar must not
	// half-populate a document. Invalid sidecars are reported as malformed
	// and the producing stage re-runs.
	if err := validate(stage, data); err != nil {
		return fmt.Errorf("%w: %s: %v", util.ErrMalformedDocument, path, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", util.ErrMalformedDocument, path, err)
	}

	return nil
}

// Write marshals doc and atomically replaces the sidecar for (track,
// stage). The document lands in a temp file in the same directory first
// and is renamed into place, so a concurrent reader never observes a
// half-written sidecar.
func (s *FileStore) Write(trackPath string, stage Stage, doc any) error {
	path := s.PathFor(trackPath, stage)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s sidecar: %w", stage, err)
	}

	tmp := path + ".tmp"
	if err := util.RetryableWriteFile(tmp, data, 0644, s.retry); err != nil {
		return fmt.Errorf("failed to write sidecar %s: %w", tmp, err)
	}

	if err := util.RetryableRename(tmp, path, s.retry); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit sidecar %s: %w", path, err)
	}

	return nil
}
