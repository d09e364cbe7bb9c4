package match

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"github.com/franz/music-importer/internal/sidecar"
	"github.com/franz/music-importer/internal/util"
)

// Filename patterns tried when a file carries no usable tags, most
// specific first.
var filenamePatterns = []*regexp.Regexp{
	// "01 - Artist - Title"
	regexp.MustCompile(`^(\d{1,3})\s*[-._]\s*(.+?)\s*-\s*(.+)$`),
	// "Artist - Title"
	regexp.MustCompile(`^(.+?)\s*-\s*(.+)$`),
}

// ReadLocalTags extracts the identifying tags for a track. Embedded tags
// are preferred; when the title is missing the filename is parsed as a
// fallback, so untagged rips still produce a usable search query.
func ReadLocalTags(path string) (sidecar.LocalTags, error) {
	tags := parseFilename(path)

	f, err := os.Open(path)
	if err != nil {
		return tags, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		// Unreadable or untagged container: the filename fallback stands.
		util.DebugLog("no embedded tags in %s: %v", path, err)
		return tags, nil
	}

	if v := strings.TrimSpace(m.Title()); v != "" {
		tags.Title = v
	}
	if v := strings.TrimSpace(m.Artist()); v != "" {
		tags.Artist = v
	}
	if v := strings.TrimSpace(m.Album()); v != "" {
		tags.Album = v
	}
	if y := m.Year(); y > 0 {
		tags.Year = y
	}
	if n, _ := m.Track(); n > 0 {
		tags.TrackNo = n
	}

	return tags, nil
}

// parseFilename derives tags from the file name alone.
func parseFilename(path string) sidecar.LocalTags {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	for i, re := range filenamePatterns {
		m := re.FindStringSubmatch(stem)
		if m == nil {
			continue
		}
		switch i {
		case 0:
			no, _ := strconv.Atoi(m[1])
			return sidecar.LocalTags{TrackNo: no, Artist: strings.TrimSpace(m[2]), Title: strings.TrimSpace(m[3])}
		case 1:
			return sidecar.LocalTags{Artist: strings.TrimSpace(m[1]), Title: strings.TrimSpace(m[2])}
		}
	}

	return sidecar.LocalTags{Title: stem}
}
