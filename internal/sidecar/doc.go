// Package sidecar persists per-stage result documents for tracks.
//
// Each stage of the pipeline writes exactly one hidden JSON artifact next
// to the track it describes (".<stem>.<stage>.json"). The sidecars are the
// durable idempotency ledger: their presence and modification times decide
// which stages must re-run on a later pass, and they survive moves and
// copies of the collection because they travel with the files.
package sidecar

import (
	"time"

	"github.com/franz/music-importer/internal/identity"
)

// Stage identifies one phase of the pipeline.
type Stage string

const (
	StageMatch    Stage = "match"
	StageAnalysis Stage = "analysis"
	StageFinal    Stage = "final"
)

// Suffix returns the sidecar filename suffix owned by the stage.
func (s Stage) Suffix() string {
	return "." + string(s) + ".json"
}

// SchemaInfo identifies the document type and version of a sidecar.
type SchemaInfo struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
}

// Document schema identifiers. Bump the version when a document shape
// changes incompatibly; validation then treats old sidecars as absent.
const (
	MatchSchemaType    = "match_segment"
	AnalysisSchemaType = "analysis_segment"
	FinalSchemaType    = "track_final"

	MatchSchemaVersion    = 1
	AnalysisSchemaVersion = 1
	FinalSchemaVersion    = 1
)

// LocalTags are the identifying tags read from the track itself, used as
// the query input for the match service.
type LocalTags struct {
	Artist      string  `json:"artist,omitempty"`
	Album       string  `json:"album,omitempty"`
	Title       string  `json:"title,omitempty"`
	Year        int     `json:"year,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	TrackNo     int     `json:"track_no,omitempty"`
}

// CatalogAlbum is the album block of a catalog candidate.
type CatalogAlbum struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	URL         string `json:"url,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
}

// CatalogTrack is the best-candidate match returned by the catalog.
type CatalogTrack struct {
	ID          string       `json:"id"`
	URL         string       `json:"url,omitempty"`
	Name        string       `json:"name"`
	Artists     []string     `json:"artists,omitempty"`
	Album       CatalogAlbum `json:"album"`
	DurationMs  int          `json:"duration_ms,omitempty"`
	DiscNumber  int          `json:"disc_number,omitempty"`
	TrackNumber int          `json:"track_number,omitempty"`
	Explicit    bool         `json:"explicit,omitempty"`
	Popularity  int          `json:"popularity,omitempty"`
	ISRC        string       `json:"isrc,omitempty"`
}

// Match outcome status values.
const (
	MatchStatusMatched   = "matched"
	MatchStatusUnmatched = "unmatched"
)

// MatchOutcome records whether the catalog produced an acceptable
// candidate. An unmatched outcome is still a persisted, positive result:
// the stage ran and concluded there is nothing acceptable.
type MatchOutcome struct {
	Status       string  `json:"status"`
	Reason       string  `json:"reason,omitempty"`
	ScoreRaw     float64 `json:"score_raw,omitempty"`
	ScorePercent float64 `json:"score_percent,omitempty"`
	SearchQuery  string  `json:"search_query,omitempty"`
}

// MatchDoc is the MATCH stage sidecar.
type MatchDoc struct {
	Schema    SchemaInfo        `json:"schema"`
	File      identity.FileInfo `json:"file"`
	LocalTags LocalTags         `json:"local_tags"`
	Catalog   *CatalogTrack     `json:"catalog"`
	Match     MatchOutcome      `json:"match"`
}

// Features are the signal-level measurements of the ANALYZE stage.
type Features struct {
	Duration    float64 `json:"duration,omitempty"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	Tempo       float64 `json:"tempo,omitempty"`
	Key         string  `json:"key,omitempty"`
	Energy      float64 `json:"energy,omitempty"`
	BeatDensity float64 `json:"beat_density,omitempty"`
	LoudnessDB  float64 `json:"loudness_db,omitempty"`
}

// GenreInfo is the genre classification of the ANALYZE stage.
type GenreInfo struct {
	Primary    string  `json:"primary,omitempty"`
	Alt1       string  `json:"alt_1,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// MoodInfo is the mood classification of the ANALYZE stage.
type MoodInfo struct {
	Valence float64 `json:"valence,omitempty"`
	Arousal float64 `json:"arousal,omitempty"`
	Tag     string  `json:"tag,omitempty"`
}

// InstrumentInfo is the instrumentation classification of the ANALYZE stage.
type InstrumentInfo struct {
	LeadInstrument string `json:"lead_instrument,omitempty"`
	BassType       string `json:"bass_type,omitempty"`
	DrumsPattern   string `json:"drums_pattern,omitempty"`
}

// AnalysisDoc is the ANALYZE stage sidecar.
type AnalysisDoc struct {
	Schema      SchemaInfo        `json:"schema"`
	File        identity.FileInfo `json:"file"`
	LocalTags   LocalTags         `json:"local_tags,omitempty"`
	Features    Features          `json:"features"`
	Genre       GenreInfo         `json:"genre"`
	Mood        MoodInfo          `json:"mood"`
	Instruments InstrumentInfo    `json:"instruments"`
}

// FinalSchemaInfo extends SchemaInfo with the schemas of the two source
// documents, recorded for provenance.
type FinalSchemaInfo struct {
	Type    string     `json:"type"`
	Version int        `json:"version"`
	Sources SourceInfo `json:"sources"`
}

// SourceInfo names the source document schemas of a merge.
type SourceInfo struct {
	Match    SchemaInfo `json:"match"`
	Analysis SchemaInfo `json:"analysis"`
}

// MergeInfo records when a final document was produced and from which
// sidecars.
type MergeInfo struct {
	CreatedAt    string `json:"created_at"`
	MatchJSON    string `json:"match_json"`
	AnalysisJSON string `json:"analysis_json"`
}

// FinalDoc is the canonical record: the MERGE stage sidecar combining the
// MATCH and ANALYZE outputs.
type FinalDoc struct {
	Schema      FinalSchemaInfo   `json:"schema"`
	File        identity.FileInfo `json:"file"`
	LocalTags   LocalTags         `json:"local_tags"`
	Catalog     *CatalogTrack     `json:"catalog"`
	Match       MatchOutcome      `json:"match"`
	Features    Features          `json:"features"`
	Genre       GenreInfo         `json:"genre"`
	Mood        MoodInfo          `json:"mood"`
	Instruments InstrumentInfo    `json:"instruments"`
	Merge       MergeInfo         `json:"merge"`
}

// MergeTimeFormat is the timestamp layout used in MergeInfo.CreatedAt.
const MergeTimeFormat = time.RFC3339
