package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
)

// RunSummary aggregates the counters of one pipeline pass. It is always
// computable from the orchestrator's counters and is emitted at the end of
// every pass: human-readable to stderr, and as JSON on stdout with --info.
type RunSummary struct {
	RunID        string        `json:"run_id"`
	Root         string        `json:"root"`
	TracksSeen   int           `json:"tracks_seen"`
	Matched      int           `json:"matched"`
	Analyzed     int           `json:"analyzed"`
	Merged       int           `json:"merged"`
	Loaded       int           `json:"loaded"`
	Failed       int           `json:"failed"`
	CatalogCalls int64         `json:"catalog_calls"`
	BytesSeen    uint64        `json:"bytes_seen"`
	RowsInDB     int           `json:"rows_in_db"`
	Elapsed      time.Duration `json:"-"`
	ElapsedSec   float64       `json:"elapsed_sec"`
	DryRun       bool          `json:"dry_run"`
}

// RenderTable writes the human-readable summary table to w.
func (s *RunSummary) RenderTable(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Import summary (run %s)", s.RunID)

	t.AppendRows([]table.Row{
		{"Tracks seen", s.TracksSeen},
		{"Matched", s.Matched},
		{"Analyzed", s.Analyzed},
		{"Merged", s.Merged},
		{"Loaded", s.Loaded},
		{"Failed", s.Failed},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Catalog calls", s.CatalogCalls},
		{"Audio seen", humanize.Bytes(s.BytesSeen)},
		{"Rows in DB", s.RowsInDB},
		{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
	})
	if s.DryRun {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Mode", "dry-run (no writes performed)"})
	}

	if width, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil && width > 0 {
		t.SetAllowedRowLength(width)
	}

	t.Render()
}

// WriteJSON writes the machine-readable summary to w.
func (s *RunSummary) WriteJSON(w io.Writer) error {
	s.ElapsedSec = s.Elapsed.Seconds()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return nil
}
