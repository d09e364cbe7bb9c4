// Package merge implements the MERGE stage: reconciling the MATCH and
// ANALYZE sidecars of a track into one canonical final document.
package merge

import (
	"fmt"
	"time"

	"github.com/franz/music-importer/internal/identity"
	"github.com/franz/music-importer/internal/sidecar"
	"github.com/franz/music-importer/internal/util"
)

// Reconciler combines stage documents into canonical records.
type Reconciler struct {
	now func() time.Time
}

// New returns a Reconciler stamping merge provenance with the wall clock.
func New() *Reconciler {
	return &Reconciler{now: time.Now}
}

// Merge validates that both documents describe the same bytes and builds
// the canonical record. On a hash mismatch it returns ErrHashMismatch and
// no document: the existing final sidecar, if any, must stay untouched,
// because the disagreement means the file changed between stage runs and
// neither input can be trusted to describe the current content.
//
// Field precedence: the file block and local tags come from the MATCH
// capture (it runs first), filled in by the ANALYZE capture for fields
// MATCH lacks. The catalog and match blocks are MATCH-only; features,
// genre, mood and instruments are copied verbatim from ANALYZE.
func (r *Reconciler) Merge(matchDoc *sidecar.MatchDoc, analysisDoc *sidecar.AnalysisDoc, matchPath, analysisPath string) (*sidecar.FinalDoc, error) {
	if matchDoc.File.HashSHA256 != analysisDoc.File.HashSHA256 {
		return nil, fmt.Errorf("%w: match=%s analysis=%s",
			util.ErrHashMismatch, matchDoc.File.HashSHA256, analysisDoc.File.HashSHA256)
	}

	final := &sidecar.FinalDoc{
		Schema: sidecar.FinalSchemaInfo{
			Type:    sidecar.FinalSchemaType,
			Version: sidecar.FinalSchemaVersion,
			Sources: sidecar.SourceInfo{
				Match:    matchDoc.Schema,
				Analysis: analysisDoc.Schema,
			},
		},
		File:        mergeFileInfo(matchDoc.File, analysisDoc.File),
		LocalTags:   mergeLocalTags(matchDoc.LocalTags, analysisDoc.LocalTags),
		Catalog:     matchDoc.Catalog,
		Match:       matchDoc.Match,
		Features:    analysisDoc.Features,
		Genre:       analysisDoc.Genre,
		Mood:        analysisDoc.Mood,
		Instruments: analysisDoc.Instruments,
		Merge: sidecar.MergeInfo{
			CreatedAt:    r.now().UTC().Format(sidecar.MergeTimeFormat),
			MatchJSON:    matchPath,
			AnalysisJSON: analysisPath,
		},
	}

	return final, nil
}

// mergeFileInfo prefers the MATCH capture, filling empty fields from the
// ANALYZE capture.
func mergeFileInfo(primary, secondary identity.FileInfo) identity.FileInfo {
	out := primary
	if out.Path == "" {
		out.Path = secondary.Path
	}
	if out.Stem == "" {
		out.Stem = secondary.Stem
	}
	if out.SizeBytes == 0 {
		out.SizeBytes = secondary.SizeBytes
	}
	if out.MtimeUnix == 0 {
		out.MtimeUnix = secondary.MtimeUnix
	}
	return out
}

// mergeLocalTags prefers the MATCH capture per field.
func mergeLocalTags(primary, secondary sidecar.LocalTags) sidecar.LocalTags {
	out := primary
	if out.Artist == "" {
		out.Artist = secondary.Artist
	}
	if out.Album == "" {
		out.Album = secondary.Album
	}
	if out.Title == "" {
		out.Title = secondary.Title
	}
	if out.Year == 0 {
		out.Year = secondary.Year
	}
	if out.DurationSec == 0 {
		out.DurationSec = secondary.DurationSec
	}
	if out.TrackNo == 0 {
		out.TrackNo = secondary.TrackNo
	}
	return out
}
