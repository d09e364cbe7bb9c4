package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/franz/music-importer/internal/analyze"
	"github.com/franz/music-importer/internal/load"
	"github.com/franz/music-importer/internal/match"
	"github.com/franz/music-importer/internal/merge"
	"github.com/franz/music-importer/internal/pipeline"
	"github.com/franz/music-importer/internal/report"
	"github.com/franz/music-importer/internal/sidecar"
	"github.com/franz/music-importer/internal/store"
	"github.com/franz/music-importer/internal/throttle"
	"github.com/franz/music-importer/internal/util"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run one import pass over the collection",
	Long: `Walk the collection root and run MATCH, ANALYZE, MERGE and LOAD for
every audio file, skipping stages whose sidecar is already present and up
to date.

Per-track failures are logged and counted but do not abort the pass; the
exit code is non-zero only for fatal setup errors (missing root, missing
schema, another pass holding the lock).`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP("root", "r", "", "collection root to walk")
	importCmd.Flags().Int("max-tracks", 0, "max tracks to process in this pass (0 = all)")
	importCmd.Flags().Bool("force-match", false, "run MATCH even if a match sidecar exists")
	importCmd.Flags().Bool("force-analyze", false, "run ANALYZE even if an analysis sidecar exists")
	importCmd.Flags().Bool("force-merge", false, "run MERGE even if the final sidecar is up to date")
	importCmd.Flags().Bool("skip-match", false, "skip the MATCH stage")
	importCmd.Flags().Bool("skip-analyze", false, "skip the ANALYZE stage")
	importCmd.Flags().Bool("skip-merge", false, "skip the MERGE stage")
	importCmd.Flags().Bool("skip-load", false, "skip the LOAD stage")
	importCmd.Flags().Bool("dry-run", false, "perform no external calls or writes, log intended actions")
	importCmd.Flags().Bool("info", false, "emit the run summary as JSON on stdout")
	importCmd.Flags().Duration("throttle-interval", util.DefaultThrottleInterval, "minimum spacing between catalog calls")
	importCmd.Flags().String("catalog-url", util.DefaultCatalogBaseURL, "catalog service base URL")
	importCmd.Flags().String("analyzer-command", "", "external analyzer command (in-process probe if empty)")

	for _, name := range []string{
		"root", "max-tracks",
		"force-match", "force-analyze", "force-merge",
		"skip-match", "skip-analyze", "skip-merge", "skip-load",
		"dry-run", "info", "throttle-interval", "catalog-url", "analyzer-command",
	} {
		viper.BindPFlag(name, importCmd.Flags().Lookup(name))
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	cfg := util.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// One pass at a time: sidecar writes for a track must never
	// interleave between two importer processes.
	lock := flock.New(cfg.DBPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire pass lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another import pass is already running (lock: %s)", cfg.DBPath+".lock")
	}
	defer lock.Unlock()

	limiter := throttle.New(cfg.ThrottleInterval)

	var analyzer analyze.Analyzer
	if cfg.AnalyzerCommand != "" {
		analyzer, err = analyze.NewExecAnalyzer(cfg.AnalyzerCommand)
		if err != nil {
			return err
		}
		util.InfoLog("Analyzer: external (%s)", cfg.AnalyzerCommand)
	} else {
		analyzer = analyze.NewProbeAnalyzer()
		util.InfoLog("Analyzer: in-process probe")
	}

	var loader *load.Loader
	if !cfg.DryRun {
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		loader, err = load.New(db)
		if err != nil {
			// A missing tracks schema is fatal for the whole run.
			return err
		}
	}

	logLevel := report.LevelInfo
	if viper.GetBool("quiet") {
		logLevel = report.LevelWarning
	} else if viper.GetBool("verbose") {
		logLevel = report.LevelDebug
	}

	logger, err := report.NewEventLogger("logs/import", logLevel)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		logger = report.NullLogger()
	}
	defer logger.Close()

	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := pipeline.New(pipeline.Options{
		Config:     cfg,
		Sidecars:   sidecar.NewFileStore(),
		Matcher:    match.NewClient(cfg.CatalogBaseURL, limiter),
		Analyzer:   analyzer,
		Reconciler: merge.New(),
		Loader:     loader,
		Limiter:    limiter,
		Logger:     logger,
	})

	summary, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	summary.RenderTable(os.Stderr)
	if cfg.Info {
		if err := summary.WriteJSON(os.Stdout); err != nil {
			return err
		}
	}

	if summary.Failed > 0 {
		util.WarnLog("%d track(s) failed; they will be retried on the next pass", summary.Failed)
	}

	// A completed pass exits 0 even when some tracks failed.
	return nil
}
