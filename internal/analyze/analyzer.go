// Package analyze implements the ANALYZE stage: extracting features and
// classifications from a track's audio.
//
// Two implementations exist behind the Analyzer interface. ProbeAnalyzer
// runs in-process and fills the signal-level features from an ffprobe
// probe. ExecAnalyzer shells out to a configured external tool (typically
// a model-backed classifier too heavy to host in-process) and parses its
// JSON output. The orchestrator selects one at construction time and
// depends only on the interface.
package analyze

import (
	"context"

	"github.com/franz/music-importer/internal/identity"
	"github.com/franz/music-importer/internal/sidecar"
)

// Payload is the stage-specific output of one analysis run.
type Payload struct {
	Features    sidecar.Features       `json:"features"`
	Genre       sidecar.GenreInfo      `json:"genre"`
	Mood        sidecar.MoodInfo       `json:"mood"`
	Instruments sidecar.InstrumentInfo `json:"instruments"`
}

// Analyzer extracts an analysis payload from a track. Implementations may
// be slow (CPU/GPU bound) but are assumed not rate-limited.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*Payload, error)
}

// BuildDoc assembles the ANALYZE sidecar document for a track.
func BuildDoc(file *identity.FileInfo, payload *Payload) *sidecar.AnalysisDoc {
	return &sidecar.AnalysisDoc{
		Schema: sidecar.SchemaInfo{
			Type:    sidecar.AnalysisSchemaType,
			Version: sidecar.AnalysisSchemaVersion,
		},
		File:        *file,
		Features:    payload.Features,
		Genre:       payload.Genre,
		Mood:        payload.Mood,
		Instruments: payload.Instruments,
	}
}
