// Package match implements the MATCH stage: querying an external catalog
// for the best candidate describing a local track.
//
// The pipeline depends only on the Service interface; the production
// implementation is the rate-limited HTTP client in client.go. The scoring
// heuristics of the catalog itself are opaque to this package.
package match

import (
	"context"

	"github.com/franz/music-importer/internal/identity"
	"github.com/franz/music-importer/internal/sidecar"
)

// Result is the outcome of one catalog lookup. Candidate is nil for an
// unmatched outcome; Outcome always describes what happened, so unmatched
// is a persisted result rather than an error.
type Result struct {
	Candidate *sidecar.CatalogTrack
	Outcome   sidecar.MatchOutcome
}

// Service finds the best catalog candidate for a set of local tags.
type Service interface {
	Match(ctx context.Context, tags sidecar.LocalTags) (*Result, error)
}

// BuildDoc assembles the MATCH sidecar document for a track from its file
// identity, local tags and lookup result.
func BuildDoc(file *identity.FileInfo, tags sidecar.LocalTags, res *Result) *sidecar.MatchDoc {
	return &sidecar.MatchDoc{
		Schema: sidecar.SchemaInfo{
			Type:    sidecar.MatchSchemaType,
			Version: sidecar.MatchSchemaVersion,
		},
		File:      *file,
		LocalTags: tags,
		Catalog:   res.Candidate,
		Match:     res.Outcome,
	}
}
