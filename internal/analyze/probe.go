package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/franz/music-importer/internal/util"
)

// ProbeAnalyzer is the in-process analyzer. It extracts the signal-level
// features ffprobe can report (duration, sample rate, loudness via stream
// metadata); the classification sections stay empty, which the merge and
// load stages handle as absent evidence.
type ProbeAnalyzer struct{}

// NewProbeAnalyzer returns the in-process ffprobe-backed analyzer.
func NewProbeAnalyzer() *ProbeAnalyzer {
	return &ProbeAnalyzer{}
}

// ffprobeInfo is the subset of ffprobe JSON output the probe consumes.
type ffprobeInfo struct {
	Streams []ffprobeStream `json:"streams"`
	Format  *ffprobeFormat  `json:"format"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	SampleRate int    `json:"sample_rate,string"`
	Duration   string `json:"duration"`
}

type ffprobeFormat struct {
	Duration string            `json:"duration"`
	Tags     map[string]string `json:"tags"`
}

// Analyze probes path with ffprobe and maps the result to a Payload.
func (a *ProbeAnalyzer) Analyze(ctx context.Context, path string) (*Payload, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("%w: ffprobe not in PATH", util.ErrNotFound)
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var info ffprobeInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	payload := &Payload{}

	for _, stream := range info.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		payload.Features.SampleRate = stream.SampleRate
		if d := parseFloat(stream.Duration); d > 0 {
			payload.Features.Duration = d
		}
		break
	}

	if info.Format != nil && payload.Features.Duration == 0 {
		payload.Features.Duration = parseFloat(info.Format.Duration)
	}

	return payload, nil
}

func parseFloat(s string) float64 {
	if s == "" || s == "N/A" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
