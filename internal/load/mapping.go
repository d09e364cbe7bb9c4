package load

import (
	"strconv"
	"strings"

	"github.com/franz/music-importer/internal/sidecar"
)

// valueSource resolves one candidate value for a column from the canonical
// record. ok is false when the record carries no evidence for this source,
// in which case the next source in the chain is tried.
type valueSource func(d *sidecar.FinalDoc) (value any, ok bool)

// columnSources is the field-mapping table: for every known column, the
// ordered chain of places in the canonical record a value may come from.
// Local evidence outranks catalog evidence, which outranks derived values.
// Columns absent from this table (ids, timestamps, flags) are managed by
// the upsert itself; columns with no resolvable value are left unset, and
// no value is ever invented.
var columnSources = map[string][]valueSource{
	"file_path": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.File.Path) },
	},
	"file_hash": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.File.HashSHA256) },
	},
	"file_size": {
		func(d *sidecar.FinalDoc) (any, bool) { return i64(d.File.SizeBytes) },
	},
	"mtime": {
		func(d *sidecar.FinalDoc) (any, bool) { return i64(d.File.MtimeUnix) },
	},

	"title": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.LocalTags.Title) },
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil {
				return nil, false
			}
			return str(d.Catalog.Name)
		},
	},
	"artist": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.LocalTags.Artist) },
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil || len(d.Catalog.Artists) == 0 {
				return nil, false
			}
			return str(d.Catalog.Artists[0])
		},
	},
	"album": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.LocalTags.Album) },
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil {
				return nil, false
			}
			return str(d.Catalog.Album.Name)
		},
	},
	"album_artist": {
		// No dedicated album-artist tag is captured; the track artist is
		// the best available evidence.
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.LocalTags.Artist) },
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil || len(d.Catalog.Artists) == 0 {
				return nil, false
			}
			return str(d.Catalog.Artists[0])
		},
	},
	"track_number": {
		func(d *sidecar.FinalDoc) (any, bool) { return intVal(d.LocalTags.TrackNo) },
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil {
				return nil, false
			}
			return intVal(d.Catalog.TrackNumber)
		},
	},
	"disc_number": {
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil {
				return nil, false
			}
			return intVal(d.Catalog.DiscNumber)
		},
	},
	"year": {
		func(d *sidecar.FinalDoc) (any, bool) { return intVal(d.LocalTags.Year) },
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil {
				return nil, false
			}
			return releaseYear(d.Catalog.Album.ReleaseDate)
		},
	},
	"genre": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.Genre.Primary) },
	},
	"duration_sec": {
		func(d *sidecar.FinalDoc) (any, bool) { return f64(d.LocalTags.DurationSec) },
		func(d *sidecar.FinalDoc) (any, bool) { return f64(d.Features.Duration) },
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil || d.Catalog.DurationMs == 0 {
				return nil, false
			}
			return float64(d.Catalog.DurationMs) / 1000.0, true
		},
	},

	"catalog_id": {
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil {
				return nil, false
			}
			return str(d.Catalog.ID)
		},
	},
	"catalog_url": {
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil {
				return nil, false
			}
			return str(d.Catalog.URL)
		},
	},
	"catalog_popularity": {
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil {
				return nil, false
			}
			return intVal(d.Catalog.Popularity)
		},
	},
	"catalog_isrc": {
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil {
				return nil, false
			}
			return str(d.Catalog.ISRC)
		},
	},
	"catalog_album_id": {
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil {
				return nil, false
			}
			return str(d.Catalog.Album.ID)
		},
	},
	"catalog_artist_ids": {
		func(d *sidecar.FinalDoc) (any, bool) {
			if d.Catalog == nil || len(d.Catalog.Artists) == 0 {
				return nil, false
			}
			return strings.Join(d.Catalog.Artists, ","), true
		},
	},
	"catalog_match_score": {
		func(d *sidecar.FinalDoc) (any, bool) { return f64(d.Match.ScorePercent) },
		func(d *sidecar.FinalDoc) (any, bool) { return f64(d.Match.ScoreRaw) },
	},

	"bpm": {
		func(d *sidecar.FinalDoc) (any, bool) { return f64(d.Features.Tempo) },
	},
	"key": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.Features.Key) },
	},
	"energy": {
		func(d *sidecar.FinalDoc) (any, bool) { return f64(d.Features.Energy) },
	},
	"valence": {
		func(d *sidecar.FinalDoc) (any, bool) { return f64(d.Mood.Valence) },
	},
	"loudness_db": {
		func(d *sidecar.FinalDoc) (any, bool) { return f64(d.Features.LoudnessDB) },
	},
	"beat_density": {
		func(d *sidecar.FinalDoc) (any, bool) { return f64(d.Features.BeatDensity) },
	},
	"mood_valence": {
		func(d *sidecar.FinalDoc) (any, bool) { return f64(d.Mood.Valence) },
	},
	"mood_arousal": {
		func(d *sidecar.FinalDoc) (any, bool) { return f64(d.Mood.Arousal) },
	},
	"mood_label": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.Mood.Tag) },
	},
	"lead_instrument": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.Instruments.LeadInstrument) },
	},
	"bass_type": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.Instruments.BassType) },
	},
	"drums_pattern": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.Instruments.DrumsPattern) },
	},

	"match_json_path": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.Merge.MatchJSON) },
	},
	"analysis_json_path": {
		func(d *sidecar.FinalDoc) (any, bool) { return str(d.Merge.AnalysisJSON) },
	},

	"analysis_version": {
		func(d *sidecar.FinalDoc) (any, bool) { return intVal(d.Schema.Sources.Analysis.Version) },
	},
	"match_meta_version": {
		func(d *sidecar.FinalDoc) (any, bool) { return intVal(d.Schema.Sources.Match.Version) },
	},
}

// resolve evaluates the source chain for column against doc.
func resolve(column string, doc *sidecar.FinalDoc) (any, bool) {
	sources, known := columnSources[column]
	if !known {
		return nil, false
	}
	for _, source := range sources {
		if v, ok := source(doc); ok {
			return v, true
		}
	}
	return nil, false
}

func str(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

func i64(v int64) (any, bool) {
	if v == 0 {
		return nil, false
	}
	return v, true
}

func intVal(v int) (any, bool) {
	if v == 0 {
		return nil, false
	}
	return v, true
}

func f64(v float64) (any, bool) {
	if v == 0 {
		return nil, false
	}
	return v, true
}

func releaseYear(releaseDate string) (any, bool) {
	if len(releaseDate) < 4 {
		return nil, false
	}
	year, err := strconv.Atoi(releaseDate[:4])
	if err != nil || year == 0 {
		return nil, false
	}
	return year, true
}
