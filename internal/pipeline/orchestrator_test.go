package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/music-importer/internal/analyze"
	"github.com/franz/music-importer/internal/identity"
	"github.com/franz/music-importer/internal/load"
	"github.com/franz/music-importer/internal/match"
	"github.com/franz/music-importer/internal/merge"
	"github.com/franz/music-importer/internal/sidecar"
	"github.com/franz/music-importer/internal/store"
	"github.com/franz/music-importer/internal/util"
)

// fakeMatcher returns a fixed matched result and counts lookups.
type fakeMatcher struct {
	calls int
	err   error
}

func (f *fakeMatcher) Match(ctx context.Context, tags sidecar.LocalTags) (*match.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &match.Result{
		Candidate: &sidecar.CatalogTrack{
			ID:      "cat-" + tags.Title,
			Name:    tags.Title,
			Artists: []string{tags.Artist},
			Album:   sidecar.CatalogAlbum{ID: "alb-1", Name: "Album"},
		},
		Outcome: sidecar.MatchOutcome{
			Status:       sidecar.MatchStatusMatched,
			ScoreRaw:     0.9,
			ScorePercent: 90,
		},
	}, nil
}

// fakeAnalyzer returns fixed features and can fail for selected paths.
type fakeAnalyzer struct {
	calls   int
	failFor map[string]bool
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, path string) (*analyze.Payload, error) {
	f.calls++
	if f.failFor[path] {
		return nil, fmt.Errorf("%w: analyzer crashed on %s", util.ErrExternalService, path)
	}
	return &analyze.Payload{
		Features: sidecar.Features{Duration: 200, SampleRate: 44100, Tempo: 120},
		Genre:    sidecar.GenreInfo{Primary: "electronic"},
	}, nil
}

type testEnv struct {
	root     string
	cfg      *util.Config
	sidecars sidecar.Store
	matcher  *fakeMatcher
	analyzer *fakeAnalyzer
	loader   *load.Loader
	store    *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	st, err := store.Open(filepath.Join(t.TempDir(), "tracks.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	loader, err := load.New(st)
	if err != nil {
		t.Fatalf("load.New failed: %v", err)
	}

	return &testEnv{
		root:     root,
		cfg:      &util.Config{Root: root, DBPath: "unused"},
		sidecars: sidecar.NewFileStore(),
		matcher:  &fakeMatcher{},
		analyzer: &fakeAnalyzer{},
		loader:   loader,
		store:    st,
	}
}

func (e *testEnv) orchestrator() *Orchestrator {
	return New(Options{
		Config:     e.cfg,
		Sidecars:   e.sidecars,
		Matcher:    e.matcher,
		Analyzer:   e.analyzer,
		Reconciler: merge.New(),
		Loader:     e.loader,
	})
}

func (e *testEnv) addTrack(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("audio bytes for "+name), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

// writeMatchSidecar persists a MATCH sidecar as a previous pass would have.
// hashOverride, when non-empty, replaces the real content hash.
func (e *testEnv) writeMatchSidecar(t *testing.T, path, hashOverride string) {
	t.Helper()
	file, err := identity.Describe(path)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if hashOverride != "" {
		file.HashSHA256 = hashOverride
	}
	tags, err := match.ReadLocalTags(path)
	if err != nil {
		t.Fatalf("ReadLocalTags failed: %v", err)
	}
	res, _ := e.matcher.Match(context.Background(), tags)
	e.matcher.calls-- // setup lookups do not count
	if err := e.sidecars.Write(path, sidecar.StageMatch, match.BuildDoc(file, tags, res)); err != nil {
		t.Fatalf("sidecar write failed: %v", err)
	}
}

func (e *testEnv) writeAnalysisSidecar(t *testing.T, path string) {
	t.Helper()
	file, err := identity.Describe(path)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	payload, _ := e.analyzer.Analyze(context.Background(), path)
	e.analyzer.calls--
	if err := e.sidecars.Write(path, sidecar.StageAnalysis, analyze.BuildDoc(file, payload)); err != nil {
		t.Fatalf("sidecar write failed: %v", err)
	}
}

func (e *testEnv) writeFinalSidecar(t *testing.T, path string) {
	t.Helper()
	matchDoc, err := e.sidecars.ReadMatch(path)
	if err != nil {
		t.Fatalf("ReadMatch failed: %v", err)
	}
	analysisDoc, err := e.sidecars.ReadAnalysis(path)
	if err != nil {
		t.Fatalf("ReadAnalysis failed: %v", err)
	}
	final, err := merge.New().Merge(matchDoc, analysisDoc,
		e.sidecars.PathFor(path, sidecar.StageMatch),
		e.sidecars.PathFor(path, sidecar.StageAnalysis))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if err := e.sidecars.Write(path, sidecar.StageFinal, final); err != nil {
		t.Fatalf("sidecar write failed: %v", err)
	}
}

// backdate pushes the sidecar mtimes for path into the past so the final
// document written afterwards reads as newer.
func (e *testEnv) backdate(t *testing.T, path string, stage sidecar.Stage, age time.Duration) {
	t.Helper()
	when := time.Now().Add(-age)
	if err := os.Chtimes(e.sidecars.PathFor(path, stage), when, when); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
}

func TestRunMixedCollection(t *testing.T) {
	env := newTestEnv(t)

	// Fully processed on an earlier pass: all three sidecars, final newest,
	// row already in the database.
	done := env.addTrack(t, "Artist One - Done Track.mp3")
	env.writeMatchSidecar(t, done, "")
	env.writeAnalysisSidecar(t, done)
	env.writeFinalSidecar(t, done)
	env.backdate(t, done, sidecar.StageMatch, 2*time.Hour)
	env.backdate(t, done, sidecar.StageAnalysis, 2*time.Hour)
	doneFinal, err := env.sidecars.ReadFinal(done)
	if err != nil {
		t.Fatalf("ReadFinal failed: %v", err)
	}
	if _, err := env.loader.Load(doneFinal, env.sidecars.PathFor(done, sidecar.StageFinal)); err != nil {
		t.Fatalf("seed load failed: %v", err)
	}

	// Match already done, analysis pending.
	partial := env.addTrack(t, "Artist Two - Partial Track.mp3")
	env.writeMatchSidecar(t, partial, "")

	// Never seen before.
	fresh := env.addTrack(t, "Artist Three - Fresh Track.mp3")

	summary, err := env.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.TracksSeen != 3 {
		t.Errorf("tracks seen = %d, want 3", summary.TracksSeen)
	}
	if summary.Matched != 1 {
		t.Errorf("matched = %d, want 1 (only the fresh track)", summary.Matched)
	}
	if summary.Analyzed != 2 {
		t.Errorf("analyzed = %d, want 2", summary.Analyzed)
	}
	if summary.Merged != 2 {
		t.Errorf("merged = %d, want 2", summary.Merged)
	}
	if summary.Loaded != 2 {
		t.Errorf("loaded = %d, want 2 (fully processed track has nothing to load)", summary.Loaded)
	}
	if summary.Failed != 0 {
		t.Errorf("failed = %d, want 0", summary.Failed)
	}

	if env.matcher.calls != 1 {
		t.Errorf("matcher called %d times, want 1", env.matcher.calls)
	}

	rows, err := env.loader.RowCount()
	if err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	if rows != 3 {
		t.Errorf("rows = %d, want 3", rows)
	}

	for _, path := range []string{done, partial, fresh} {
		for _, stage := range []sidecar.Stage{sidecar.StageMatch, sidecar.StageAnalysis, sidecar.StageFinal} {
			if !env.sidecars.Exists(path, stage) {
				t.Errorf("missing %s sidecar for %s", stage, filepath.Base(path))
			}
		}
	}
}

func TestSecondPassIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.addTrack(t, "Artist - Track A.mp3")
	env.addTrack(t, "Artist - Track B.mp3")

	if _, err := env.orchestrator().Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	firstRows, _ := env.loader.RowCount()
	matchCallsAfterFirst := env.matcher.calls
	analyzeCallsAfterFirst := env.analyzer.calls

	summary, err := env.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if env.matcher.calls != matchCallsAfterFirst {
		t.Errorf("second pass performed %d extra catalog lookups", env.matcher.calls-matchCallsAfterFirst)
	}
	if env.analyzer.calls != analyzeCallsAfterFirst {
		t.Errorf("second pass re-analyzed %d tracks", env.analyzer.calls-analyzeCallsAfterFirst)
	}
	if summary.Matched != 0 || summary.Analyzed != 0 || summary.Merged != 0 || summary.Loaded != 0 {
		t.Errorf("second pass re-ran stages: matched=%d analyzed=%d merged=%d loaded=%d",
			summary.Matched, summary.Analyzed, summary.Merged, summary.Loaded)
	}

	rows, _ := env.loader.RowCount()
	if rows != firstRows {
		t.Errorf("rows changed across passes: %d -> %d", firstRows, rows)
	}
}

func TestStaleInputTriggersRemerge(t *testing.T) {
	env := newTestEnv(t)
	path := env.addTrack(t, "Artist - Track.mp3")

	if _, err := env.orchestrator().Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	// An analysis sidecar refreshed after the merge makes the final stale.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(env.sidecars.PathFor(path, sidecar.StageAnalysis), future, future); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	summary, err := env.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if summary.Merged != 1 {
		t.Errorf("merged = %d, want 1 re-merge for stale final", summary.Merged)
	}
	if summary.Matched != 0 || summary.Analyzed != 0 {
		t.Errorf("upstream stages re-ran: matched=%d analyzed=%d", summary.Matched, summary.Analyzed)
	}
}

func TestHashMismatchFailsTrackAndPreservesFinal(t *testing.T) {
	env := newTestEnv(t)
	path := env.addTrack(t, "Artist - Track.mp3")

	// Plant a match sidecar recorded against different bytes next to a
	// genuine analysis sidecar. The pass must refuse to merge them.
	env.writeMatchSidecar(t, path, "0000000000000000000000000000000000000000000000000000000000000000")
	env.writeAnalysisSidecar(t, path)

	// An earlier final exists and must survive the refused merge.
	finalBefore := env.addTrackFinal(t, path)

	env.backdate(t, path, sidecar.StageFinal, 0)
	env.backdate(t, path, sidecar.StageMatch, time.Minute) // older than final
	// Analysis newer than final forces the re-merge attempt.
	future := time.Now().Add(time.Hour)
	os.Chtimes(env.sidecars.PathFor(path, sidecar.StageAnalysis), future, future)

	summary, err := env.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Failed != 1 {
		t.Fatalf("failed = %d, want 1", summary.Failed)
	}
	if summary.Merged != 0 {
		t.Errorf("merged = %d, want 0", summary.Merged)
	}

	finalAfter, readErr := os.ReadFile(env.sidecars.PathFor(path, sidecar.StageFinal))
	if readErr != nil {
		t.Fatalf("final sidecar unreadable: %v", readErr)
	}
	if string(finalAfter) != string(finalBefore) {
		t.Error("existing final document was modified by a refused merge")
	}
}

// addTrackFinal writes a valid final sidecar for path directly and returns
// its bytes.
func (e *testEnv) addTrackFinal(t *testing.T, path string) []byte {
	t.Helper()
	file, err := identity.Describe(path)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	final := &sidecar.FinalDoc{
		Schema: sidecar.FinalSchemaInfo{
			Type:    sidecar.FinalSchemaType,
			Version: sidecar.FinalSchemaVersion,
			Sources: sidecar.SourceInfo{
				Match:    sidecar.SchemaInfo{Type: sidecar.MatchSchemaType, Version: 1},
				Analysis: sidecar.SchemaInfo{Type: sidecar.AnalysisSchemaType, Version: 1},
			},
		},
		File:      *file,
		LocalTags: sidecar.LocalTags{Title: "Track"},
		Match:     sidecar.MatchOutcome{Status: sidecar.MatchStatusUnmatched, Reason: "no_catalog_results_or_low_score"},
		Merge: sidecar.MergeInfo{
			CreatedAt:    time.Now().UTC().Format(sidecar.MergeTimeFormat),
			MatchJSON:    e.sidecars.PathFor(path, sidecar.StageMatch),
			AnalysisJSON: e.sidecars.PathFor(path, sidecar.StageAnalysis),
		},
	}
	if err := e.sidecars.Write(path, sidecar.StageFinal, final); err != nil {
		t.Fatalf("final write failed: %v", err)
	}
	data, err := os.ReadFile(e.sidecars.PathFor(path, sidecar.StageFinal))
	if err != nil {
		t.Fatalf("final read failed: %v", err)
	}
	return data
}

func TestAnalyzerFailureStopsDownstreamStagesOnly(t *testing.T) {
	env := newTestEnv(t)
	bad := env.addTrack(t, "Artist - Broken.mp3")
	good := env.addTrack(t, "Artist - Works.mp3")
	env.analyzer.failFor = map[string]bool{bad: true}

	summary, err := env.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
	// The healthy track still completes the full pipeline.
	if summary.Loaded != 1 {
		t.Errorf("loaded = %d, want 1", summary.Loaded)
	}
	if !env.sidecars.Exists(good, sidecar.StageFinal) {
		t.Error("healthy track has no final sidecar")
	}

	// The failed track got its match sidecar but nothing downstream.
	if !env.sidecars.Exists(bad, sidecar.StageMatch) {
		t.Error("failed track should keep its match sidecar")
	}
	if env.sidecars.Exists(bad, sidecar.StageAnalysis) || env.sidecars.Exists(bad, sidecar.StageFinal) {
		t.Error("failed track must not produce downstream sidecars")
	}
}

func TestMalformedSidecarRerunsStage(t *testing.T) {
	env := newTestEnv(t)
	path := env.addTrack(t, "Artist - Track.mp3")

	if _, err := env.orchestrator().Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	// Corrupt the match sidecar; the stage must treat it as absent.
	matchPath := env.sidecars.PathFor(path, sidecar.StageMatch)
	if err := os.WriteFile(matchPath, []byte("{ not json"), 0644); err != nil {
		t.Fatalf("corrupt write failed: %v", err)
	}

	summary, err := env.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if summary.Matched != 1 {
		t.Errorf("matched = %d, want 1 re-run over corrupt sidecar", summary.Matched)
	}

	if _, err := env.sidecars.ReadMatch(path); err != nil {
		t.Errorf("match sidecar still unreadable after re-run: %v", err)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	path := env.addTrack(t, "Artist - Track.mp3")
	env.cfg.DryRun = true

	o := New(Options{
		Config:     env.cfg,
		Sidecars:   env.sidecars,
		Matcher:    env.matcher,
		Analyzer:   env.analyzer,
		Reconciler: merge.New(),
		Loader:     nil,
	})

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !summary.DryRun {
		t.Error("summary should be flagged dry-run")
	}
	if env.matcher.calls != 0 || env.analyzer.calls != 0 {
		t.Errorf("dry run invoked services: match=%d analyze=%d", env.matcher.calls, env.analyzer.calls)
	}
	for _, stage := range []sidecar.Stage{sidecar.StageMatch, sidecar.StageAnalysis, sidecar.StageFinal} {
		if env.sidecars.Exists(path, stage) {
			t.Errorf("dry run wrote a %s sidecar", stage)
		}
	}
}

func TestMaxTracksCapsPass(t *testing.T) {
	env := newTestEnv(t)
	env.addTrack(t, "a.mp3")
	env.addTrack(t, "b.mp3")
	env.addTrack(t, "c.mp3")
	env.cfg.MaxTracks = 2

	summary, err := env.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.TracksSeen != 2 {
		t.Errorf("tracks seen = %d, want 2", summary.TracksSeen)
	}
}

func TestCancelledContextStopsBeforeNextTrack(t *testing.T) {
	env := newTestEnv(t)
	env.addTrack(t, "a.mp3")
	env.addTrack(t, "b.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := env.orchestrator().Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.TracksSeen != 0 {
		t.Errorf("tracks seen = %d, want 0 with pre-cancelled context", summary.TracksSeen)
	}
}

func TestMatchFailureIsIsolated(t *testing.T) {
	env := newTestEnv(t)
	env.addTrack(t, "a.mp3")
	env.matcher.err = errors.New("catalog down")

	summary, err := env.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned an error: %v (per-track failures must not abort the pass)", err)
	}
	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
}
