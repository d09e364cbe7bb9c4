// Package fetch materializes audio bytes for a track descriptor at the
// collection's target path. It is not part of the import pass; it shares
// the identity hasher and the library path convention so fetched files
// drop straight into the pipeline's collection layout.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/music-importer/internal/identity"
	"github.com/franz/music-importer/internal/util"
)

// Track describes what to fetch and where it belongs in the library.
type Track struct {
	ID           string
	Artist       string
	Album        string
	Title        string
	Year         int
	TrackNo      int
	ExpectedHash string // optional; verified after download when set
}

// TargetRelPath returns the library-relative path for the track, without
// extension: Artist/Year Album/NN Title.
func (t Track) TargetRelPath() string {
	album := t.Album
	if album == "" {
		album = "Unknown Album"
	}
	if t.Year > 0 {
		album = fmt.Sprintf("%d %s", t.Year, album)
	}

	title := t.Title
	if t.TrackNo > 0 {
		title = fmt.Sprintf("%02d %s", t.TrackNo, title)
	}

	artist := t.Artist
	if artist == "" {
		artist = "Unknown Artist"
	}

	return filepath.Join(sanitize(artist), sanitize(album), sanitize(title))
}

// Fetcher materializes a track's audio at the library target location and
// returns the final path.
type Fetcher interface {
	Fetch(ctx context.Context, track Track) (string, error)
}

// HTTPFetcher downloads audio from a content endpoint.
type HTTPFetcher struct {
	baseURL    string
	root       string
	httpClient *http.Client
	retry      *util.RetryConfig
}

// NewHTTPFetcher creates a fetcher downloading into the collection rooted
// at root.
func NewHTTPFetcher(baseURL, root string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		root:    root,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		retry: util.DefaultRetryConfig(),
	}
}

// Fetch downloads the track to a temp file, verifies the content hash when
// one is expected, and moves it into place. An existing file at the target
// is left untouched.
func (f *HTTPFetcher) Fetch(ctx context.Context, track Track) (string, error) {
	targetNoExt := filepath.Join(f.root, track.TargetRelPath())

	if existing := findExisting(targetNoExt); existing != "" {
		util.InfoLog("fetch: already present: %s", existing)
		return existing, nil
	}

	urlStr := fmt.Sprintf("%s/audio/%s", f.baseURL, track.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", util.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d fetching %s", util.ErrExternalService, resp.StatusCode, track.ID)
	}

	ext := extensionFor(resp.Header.Get("Content-Type"))
	target := targetNoExt + ext

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create target directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".fetch-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", fmt.Errorf("download failed: %w", copyErr)
	}

	if track.ExpectedHash != "" {
		got, err := identity.Hash(tmpPath)
		if err != nil {
			os.Remove(tmpPath)
			return "", err
		}
		if got != track.ExpectedHash {
			os.Remove(tmpPath)
			return "", fmt.Errorf("%w: expected %s got %s", util.ErrHashMismatch, track.ExpectedHash, got)
		}
	}

	if err := util.RetryableRename(tmpPath, target, f.retry); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}

	util.SuccessLog("fetch: %s", target)
	return target, nil
}

// findExisting returns an already-present audio file for the target stem.
func findExisting(targetNoExt string) string {
	for _, ext := range []string{".flac", ".mp3", ".m4a", ".ogg", ".opus", ".wav"} {
		candidate := targetNoExt + ext
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "flac"):
		return ".flac"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	case strings.Contains(contentType, "mp4"), strings.Contains(contentType, "m4a"):
		return ".m4a"
	case strings.Contains(contentType, "wav"):
		return ".wav"
	default:
		return ".mp3"
	}
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(s))
}
