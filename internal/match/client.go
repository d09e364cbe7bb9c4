package match

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/franz/music-importer/internal/sidecar"
	"github.com/franz/music-importer/internal/throttle"
	"github.com/franz/music-importer/internal/util"
)

const (
	// UserAgent identifies this application to the catalog service.
	UserAgent = "music-importer/1.0 (https://github.com/franz/music-importer)"

	// MinAcceptScore is the raw score floor below which a candidate is
	// recorded as unmatched.
	MinAcceptScore = 0.55

	// UnmatchedReasonNoResults is recorded when the catalog returns no
	// candidates or none clears the score floor.
	UnmatchedReasonNoResults = "no_catalog_results_or_low_score"
)

// Client is the production match Service: an HTTP catalog client gated by
// the shared throttle controller. The controller is owned by the
// orchestrator, so its call count shows up in the run summary.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	limiter    *throttle.Controller
}

// NewClient creates a catalog client. limiter must not be nil; every
// request waits for its turn before going out.
func NewClient(baseURL string, limiter *throttle.Controller) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: UserAgent,
		limiter:   limiter,
	}
}

// searchResponse is the catalog search result envelope.
type searchResponse struct {
	Tracks []candidate `json:"tracks"`
	Count  int         `json:"count"`
}

// candidate is one scored catalog entry.
type candidate struct {
	sidecar.CatalogTrack
	Score float64 `json:"score"`
}

// Match queries the catalog for the best candidate for tags. A lookup that
// completes but finds nothing acceptable returns an unmatched Result, not
// an error; errors are reserved for transport and service failures.
func (c *Client) Match(ctx context.Context, tags sidecar.LocalTags) (*Result, error) {
	query := buildQuery(tags)

	if err := c.limiter.WaitTurn(ctx); err != nil {
		return nil, err
	}

	urlStr := fmt.Sprintf("%s/search?%s", c.baseURL, query)
	util.DebugLog("catalog: searching %s", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("%w: catalog unavailable (503) - rate limit exceeded or maintenance", util.ErrExternalService)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: unexpected status %d: %s", util.ErrExternalService, resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", util.ErrExternalService, err)
	}

	if len(result.Tracks) == 0 || result.Tracks[0].Score < MinAcceptScore {
		util.DebugLog("catalog: no acceptable match for %q", query)
		return &Result{
			Outcome: sidecar.MatchOutcome{
				Status:      sidecar.MatchStatusUnmatched,
				Reason:      UnmatchedReasonNoResults,
				SearchQuery: query,
			},
		}, nil
	}

	best := result.Tracks[0]
	util.DebugLog("catalog: matched %q -> %s (score %.2f)", query, best.ID, best.Score)

	return &Result{
		Candidate: &best.CatalogTrack,
		Outcome: sidecar.MatchOutcome{
			Status:       sidecar.MatchStatusMatched,
			ScoreRaw:     best.Score,
			ScorePercent: scoreToPercent(best.Score),
			SearchQuery:  query,
		},
	}, nil
}

// buildQuery encodes the non-empty tag fields as search parameters.
func buildQuery(tags sidecar.LocalTags) string {
	v := url.Values{}
	if tags.Artist != "" {
		v.Set("artist", tags.Artist)
	}
	if tags.Title != "" {
		v.Set("title", tags.Title)
	}
	if tags.Album != "" {
		v.Set("album", tags.Album)
	}
	if tags.DurationSec > 0 {
		v.Set("duration", fmt.Sprintf("%.0f", tags.DurationSec))
	}
	v.Set("fmt", "json")
	v.Set("limit", "5")
	return v.Encode()
}

func scoreToPercent(score float64) float64 {
	pct := score * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}
