package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/franz/music-importer/internal/util"
)

// ExecAnalyzer runs a configured external command per track and parses
// the analysis payload from its stdout. The command receives the track
// path as its final argument and must print a JSON object with features /
// genre / mood / instruments sections.
type ExecAnalyzer struct {
	command string
	args    []string
}

// NewExecAnalyzer builds an analyzer from a command line, e.g.
// "python3 -m analyzer --quiet". The track path is appended per call.
func NewExecAnalyzer(commandLine string) (*ExecAnalyzer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: analyzer command is empty", util.ErrInvalidConfig)
	}
	return &ExecAnalyzer{command: fields[0], args: fields[1:]}, nil
}

// Analyze invokes the external analyzer for path.
func (a *ExecAnalyzer) Analyze(ctx context.Context, path string) (*Payload, error) {
	args := append(append([]string{}, a.args...), path)
	cmd := exec.CommandContext(ctx, a.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	util.DebugLog("analyze: running %s %s", a.command, strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%w: analyzer failed: %v: %s", util.ErrExternalService, err, msg)
		}
		return nil, fmt.Errorf("%w: analyzer failed: %v", util.ErrExternalService, err)
	}

	var payload Payload
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("%w: analyzer produced invalid JSON: %v", util.ErrExternalService, err)
	}

	return &payload, nil
}
