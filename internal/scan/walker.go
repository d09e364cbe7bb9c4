// Package scan discovers audio files under the collection root.
package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/franz/music-importer/internal/util"
)

// AudioExtensions are the supported audio file extensions.
var AudioExtensions = []string{
	".mp3",
	".flac",
	".m4a",
	".aac",
	".ogg",
	".opus",
	".wav",
	".aiff",
	".aif",
}

// Walker finds audio files in a directory tree.
type Walker struct {
	extensions map[string]bool
}

// New creates a Walker recognizing the default extensions plus any
// additional ones.
func New(additionalExts ...string) *Walker {
	extMap := make(map[string]bool)
	for _, ext := range AudioExtensions {
		extMap[strings.ToLower(ext)] = true
	}
	for _, ext := range additionalExts {
		extMap[strings.ToLower(ext)] = true
	}
	return &Walker{extensions: extMap}
}

// IsAudioFile reports whether path has a recognized audio extension.
func (w *Walker) IsAudioFile(path string) bool {
	return w.extensions[strings.ToLower(filepath.Ext(path))]
}

// Walk returns the audio files under root in sorted order, so passes
// process tracks deterministically. Hidden files (including sidecars) are
// skipped. onFound, when non-nil, is called with the running count as
// files are discovered.
func (w *Walker) Walk(root string, onFound func(count int)) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: log and keep walking, the rest of the
			// collection is still importable.
			util.WarnLog("scan: skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || !w.IsAudioFile(path) {
			return nil
		}

		files = append(files, path)
		if onFound != nil {
			onFound(len(files))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk failed: %w", err)
	}

	sort.Strings(files)
	return files, nil
}
