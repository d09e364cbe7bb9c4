// Package pipeline drives the per-track state machine
// MATCH -> ANALYZE -> MERGE -> LOAD across a collection.
//
// The orchestrator is the only component aware of all four stages. It
// consults the sidecar store to decide which stages must (re)run, isolates
// per-track failures, and aggregates the counters the end-of-pass summary
// is built from. Stage semantics live in the match, analyze, merge and
// load packages; collaborators are injected so tests can run the machine
// against fakes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franz/music-importer/internal/analyze"
	"github.com/franz/music-importer/internal/identity"
	"github.com/franz/music-importer/internal/load"
	"github.com/franz/music-importer/internal/match"
	"github.com/franz/music-importer/internal/merge"
	"github.com/franz/music-importer/internal/report"
	"github.com/franz/music-importer/internal/scan"
	"github.com/franz/music-importer/internal/sidecar"
	"github.com/franz/music-importer/internal/throttle"
	"github.com/franz/music-importer/internal/util"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// Stage names as they appear in failures, logs and events.
const (
	StageMatch   = "MATCH"
	StageAnalyze = "ANALYZE"
	StageMerge   = "MERGE"
	StageLoad    = "LOAD"
)

// Orchestrator runs one import pass over a collection.
type Orchestrator struct {
	cfg        *util.Config
	sidecars   sidecar.Store
	matcher    match.Service
	analyzer   analyze.Analyzer
	reconciler *merge.Reconciler
	loader     *load.Loader
	limiter    *throttle.Controller
	logger     *report.EventLogger
	runID      string
}

// Options are the orchestrator's injected collaborators.
type Options struct {
	Config     *util.Config
	Sidecars   sidecar.Store
	Matcher    match.Service
	Analyzer   analyze.Analyzer
	Reconciler *merge.Reconciler
	Loader     *load.Loader // nil in dry-run: no database writes happen
	Limiter    *throttle.Controller
	Logger     *report.EventLogger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = report.NullLogger()
	}
	return &Orchestrator{
		cfg:        opts.Config,
		sidecars:   opts.Sidecars,
		matcher:    opts.Matcher,
		analyzer:   opts.Analyzer,
		reconciler: opts.Reconciler,
		loader:     opts.Loader,
		limiter:    opts.Limiter,
		logger:     logger,
		runID:      uuid.NewString(),
	}
}

// TrackResult records what happened to one track in this pass.
type TrackResult struct {
	Path        string
	Matched     bool
	Analyzed    bool
	Merged      bool
	Loaded      bool
	FailedStage string
	Err         error
}

// Failed reports whether any stage of the track failed.
func (r *TrackResult) Failed() bool {
	return r.FailedStage != ""
}

// Run walks the collection and drives the state machine for every track.
// Per-track errors are recorded and the walk continues; only scan failures
// abort the pass. A cancelled context stops the pass before the next
// track starts, never mid-sidecar.
func (o *Orchestrator) Run(ctx context.Context) (*report.RunSummary, error) {
	start := time.Now()

	util.InfoLog("Scanning collection: %s", o.cfg.Root)
	walker := scan.New()
	tracks, err := walker.Walk(o.cfg.Root, nil)
	if err != nil {
		return nil, err
	}
	util.InfoLog("Found %d audio files", len(tracks))
	o.logger.Log(&report.Event{
		Level:   report.LevelInfo,
		Event:   report.EventScan,
		RunID:   o.runID,
		Outcome: fmt.Sprintf("%d audio files", len(tracks)),
	})

	if o.cfg.MaxTracks > 0 && len(tracks) > o.cfg.MaxTracks {
		util.InfoLog("Capping pass at max-tracks=%d", o.cfg.MaxTracks)
		tracks = tracks[:o.cfg.MaxTracks]
	}

	summary := &report.RunSummary{
		RunID:  o.runID,
		Root:   o.cfg.Root,
		DryRun: o.cfg.DryRun,
	}

	bar := progressbar.NewOptions(len(tracks),
		progressbar.OptionSetDescription("importing"),
		progressbar.OptionSetWriter(progressWriter()),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	for _, path := range tracks {
		select {
		case <-ctx.Done():
			util.WarnLog("Interrupted, stopping before next track")
			o.finish(summary, start)
			return summary, nil
		default:
		}

		result := o.ProcessTrack(ctx, path)

		summary.TracksSeen++
		if result.Matched {
			summary.Matched++
		}
		if result.Analyzed {
			summary.Analyzed++
		}
		if result.Merged {
			summary.Merged++
		}
		if result.Loaded {
			summary.Loaded++
		}
		if result.Failed() {
			summary.Failed++
			util.ErrorLog("%v", result.Err)
			o.logger.Log(&report.Event{
				Level:     report.LevelError,
				Event:     report.EventError,
				RunID:     o.runID,
				TrackPath: path,
				Stage:     result.FailedStage,
				Error:     result.Err.Error(),
			})
		}

		if info, statErr := statSize(path); statErr == nil {
			summary.BytesSeen += info
		}

		bar.Add(1)
	}

	o.finish(summary, start)
	return summary, nil
}

func (o *Orchestrator) finish(summary *report.RunSummary, start time.Time) {
	summary.Elapsed = time.Since(start)
	if o.limiter != nil {
		summary.CatalogCalls = o.limiter.Calls()
	}
	if o.loader != nil {
		if rows, err := o.loader.RowCount(); err == nil {
			summary.RowsInDB = rows
		}
	}
}

// ProcessTrack runs the four-stage state machine for one track. The first
// stage error marks the track failed and stops its downstream stages; the
// failed stage left no sidecar, so the next pass retries it naturally.
func (o *Orchestrator) ProcessTrack(ctx context.Context, path string) *TrackResult {
	result := &TrackResult{Path: path}
	util.DebugLog("=== track === %s", path)

	if err := o.runMatch(ctx, path, result); err != nil {
		result.FailedStage = StageMatch
		result.Err = util.NewStageError(StageMatch, path, err)
		return result
	}

	if err := o.runAnalyze(ctx, path, result); err != nil {
		result.FailedStage = StageAnalyze
		result.Err = util.NewStageError(StageAnalyze, path, err)
		return result
	}

	if err := o.runMerge(path, result); err != nil {
		result.FailedStage = StageMerge
		result.Err = util.NewStageError(StageMerge, path, err)
		return result
	}

	if err := o.runLoad(path, result); err != nil {
		result.FailedStage = StageLoad
		result.Err = util.NewStageError(StageLoad, path, err)
		return result
	}

	return result
}

// stageNeeded decides whether a producing stage must run: forced, sidecar
// absent, or sidecar present but malformed (a sidecar that fails schema
// validation is treated as absent).
func (o *Orchestrator) stageNeeded(path string, stage sidecar.Stage, force bool, readable func() error) bool {
	if force {
		return true
	}
	if !o.sidecars.Exists(path, stage) {
		return true
	}
	if err := readable(); err != nil {
		if errors.Is(err, util.ErrMalformedDocument) {
			util.WarnLog("%s sidecar for %s is malformed, re-running stage", stage, path)
			return true
		}
		// Transient read failure: let the stage consumer surface it.
	}
	return false
}

func (o *Orchestrator) runMatch(ctx context.Context, path string, result *TrackResult) error {
	if o.cfg.SkipMatch {
		util.DebugLog("[SKIP] MATCH (flag) %s", path)
		return nil
	}

	needed := o.stageNeeded(path, sidecar.StageMatch, o.cfg.ForceMatch, func() error {
		_, err := o.sidecars.ReadMatch(path)
		return err
	})
	if !needed {
		util.DebugLog("[SKIP] MATCH (sidecar exists) %s", path)
		o.logSkip(path, StageMatch, "sidecar exists")
		return nil
	}

	if o.cfg.DryRun {
		util.InfoLog("[DRY] MATCH %s", path)
		return nil
	}

	started := time.Now()

	file, err := identity.Describe(path)
	if err != nil {
		return err
	}

	tags, err := match.ReadLocalTags(path)
	if err != nil {
		return err
	}

	res, err := o.matcher.Match(ctx, tags)
	if err != nil {
		return err
	}

	doc := match.BuildDoc(file, tags, res)
	if err := o.sidecars.Write(path, sidecar.StageMatch, doc); err != nil {
		return err
	}

	result.Matched = true
	o.logger.Log(&report.Event{
		Level:     report.LevelInfo,
		Event:     report.EventMatch,
		RunID:     o.runID,
		TrackPath: path,
		Stage:     StageMatch,
		Outcome:   res.Outcome.Status,
		Hash:      file.HashSHA256,
		Duration:  time.Since(started).Milliseconds(),
	})
	return nil
}

func (o *Orchestrator) runAnalyze(ctx context.Context, path string, result *TrackResult) error {
	if o.cfg.SkipAnalyze {
		util.DebugLog("[SKIP] ANALYZE (flag) %s", path)
		return nil
	}

	needed := o.stageNeeded(path, sidecar.StageAnalysis, o.cfg.ForceAnalyze, func() error {
		_, err := o.sidecars.ReadAnalysis(path)
		return err
	})
	if !needed {
		util.DebugLog("[SKIP] ANALYZE (sidecar exists) %s", path)
		o.logSkip(path, StageAnalyze, "sidecar exists")
		return nil
	}

	if o.cfg.DryRun {
		util.InfoLog("[DRY] ANALYZE %s", path)
		return nil
	}

	started := time.Now()

	// Each stage recomputes the content hash itself; a file modified
	// between stage runs shows up as a hash disagreement at merge time.
	file, err := identity.Describe(path)
	if err != nil {
		return err
	}

	payload, err := o.analyzer.Analyze(ctx, path)
	if err != nil {
		return err
	}

	doc := analyze.BuildDoc(file, payload)
	if err := o.sidecars.Write(path, sidecar.StageAnalysis, doc); err != nil {
		return err
	}

	result.Analyzed = true
	o.logger.Log(&report.Event{
		Level:     report.LevelInfo,
		Event:     report.EventAnalyze,
		RunID:     o.runID,
		TrackPath: path,
		Stage:     StageAnalyze,
		Hash:      file.HashSHA256,
		Duration:  time.Since(started).Milliseconds(),
	})
	return nil
}

func (o *Orchestrator) runMerge(path string, result *TrackResult) error {
	if o.cfg.SkipMerge {
		util.DebugLog("[SKIP] MERGE (flag) %s", path)
		return nil
	}

	needed := o.cfg.ForceMerge ||
		!o.sidecars.Exists(path, sidecar.StageFinal) ||
		o.sidecars.IsNewerThan(path, sidecar.StageMatch, sidecar.StageFinal) ||
		o.sidecars.IsNewerThan(path, sidecar.StageAnalysis, sidecar.StageFinal)
	if !needed {
		// Final sidecar present, not forced, and newer than both inputs:
		// check it still parses before trusting it.
		if _, err := o.sidecars.ReadFinal(path); errors.Is(err, util.ErrMalformedDocument) {
			util.WarnLog("final sidecar for %s is malformed, re-merging", path)
		} else {
			util.DebugLog("[SKIP] MERGE (final up to date) %s", path)
			o.logSkip(path, StageMerge, "final up to date")
			return nil
		}
	}

	if o.cfg.DryRun {
		util.InfoLog("[DRY] MERGE %s", path)
		return nil
	}

	started := time.Now()

	matchDoc, err := o.sidecars.ReadMatch(path)
	if err != nil {
		return fmt.Errorf("match sidecar unavailable: %w", err)
	}

	analysisDoc, err := o.sidecars.ReadAnalysis(path)
	if err != nil {
		return fmt.Errorf("analysis sidecar unavailable: %w", err)
	}

	final, err := o.reconciler.Merge(matchDoc, analysisDoc,
		o.sidecars.PathFor(path, sidecar.StageMatch),
		o.sidecars.PathFor(path, sidecar.StageAnalysis))
	if err != nil {
		// On hash mismatch no final document is produced and any existing
		// one stays untouched.
		return err
	}

	if err := o.sidecars.Write(path, sidecar.StageFinal, final); err != nil {
		return err
	}

	result.Merged = true
	o.logger.Log(&report.Event{
		Level:     report.LevelInfo,
		Event:     report.EventMerge,
		RunID:     o.runID,
		TrackPath: path,
		Stage:     StageMerge,
		Hash:      final.File.HashSHA256,
		Duration:  time.Since(started).Milliseconds(),
	})
	return nil
}

func (o *Orchestrator) runLoad(path string, result *TrackResult) error {
	if o.cfg.SkipLoad {
		util.DebugLog("[SKIP] LOAD (flag) %s", path)
		return nil
	}

	if !o.sidecars.Exists(path, sidecar.StageFinal) {
		// Skipped with a warning, not a failure: MERGE may have been
		// skipped by flag or never produced a final document.
		util.WarnLog("[SKIP] LOAD: no final sidecar for %s", path)
		o.logSkip(path, StageLoad, "final sidecar absent")
		return nil
	}

	if o.cfg.DryRun {
		util.InfoLog("[DRY] LOAD %s", path)
		return nil
	}

	started := time.Now()

	final, err := o.sidecars.ReadFinal(path)
	if err != nil {
		return err
	}

	// An unchanged final document whose row is already present has nothing
	// to load; a fresh merge or a missing row does.
	if !result.Merged {
		present, err := o.loader.Exists(final)
		if err != nil {
			return err
		}
		if present {
			util.DebugLog("[SKIP] LOAD (row up to date) %s", path)
			o.logSkip(path, StageLoad, "row up to date")
			return nil
		}
	}

	status, err := o.loader.Load(final, o.sidecars.PathFor(path, sidecar.StageFinal))
	if err != nil {
		return err
	}

	result.Loaded = true

	rows, _ := o.loader.RowCount()
	util.DebugLog("[LOAD] %s (%s, rows=%d)", path, status, rows)
	o.logger.Log(&report.Event{
		Level:     report.LevelInfo,
		Event:     report.EventLoad,
		RunID:     o.runID,
		TrackPath: path,
		Stage:     StageLoad,
		Outcome:   string(status),
		Hash:      final.File.HashSHA256,
		Duration:  time.Since(started).Milliseconds(),
	})
	return nil
}

func (o *Orchestrator) logSkip(path, stage, reason string) {
	o.logger.Log(&report.Event{
		Level:     report.LevelDebug,
		Event:     report.EventSkip,
		RunID:     o.runID,
		TrackPath: path,
		Stage:     stage,
		Reason:    reason,
	})
}
