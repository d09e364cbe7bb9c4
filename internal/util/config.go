package util

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved importer configuration. It is built once at
// startup from viper (flags > env > config file > defaults) and validated
// before any pipeline work starts; nothing downstream reads viper directly.
type Config struct {
	// Root is the collection root to walk.
	Root string

	// DBPath is the SQLite database holding the tracks table.
	DBPath string

	// ThrottleInterval is the minimum spacing between catalog calls.
	ThrottleInterval time.Duration

	// CatalogBaseURL is the match service endpoint.
	CatalogBaseURL string

	// AnalyzerCommand, when non-empty, selects the external-process
	// analyzer; the in-process probe is used otherwise.
	AnalyzerCommand string

	// MaxTracks caps the number of tracks processed in one pass (0 = all).
	MaxTracks int

	ForceMatch   bool
	ForceAnalyze bool
	ForceMerge   bool
	SkipMatch    bool
	SkipAnalyze  bool
	SkipMerge    bool
	SkipLoad     bool

	DryRun bool
	Info   bool
}

// Defaults, overridable via config file or MIM_* environment variables.
const (
	DefaultDBPath           = "tracks.db"
	DefaultThrottleInterval = time.Second
	DefaultCatalogBaseURL   = "https://api.catalog.example/v1"
)

// LoadConfig resolves the importer configuration from viper.
func LoadConfig() *Config {
	cfg := &Config{
		Root:             viper.GetString("root"),
		DBPath:           viper.GetString("db"),
		ThrottleInterval: viper.GetDuration("throttle-interval"),
		CatalogBaseURL:   viper.GetString("catalog-url"),
		AnalyzerCommand:  viper.GetString("analyzer-command"),
		MaxTracks:        viper.GetInt("max-tracks"),
		ForceMatch:       viper.GetBool("force-match"),
		ForceAnalyze:     viper.GetBool("force-analyze"),
		ForceMerge:       viper.GetBool("force-merge"),
		SkipMatch:        viper.GetBool("skip-match"),
		SkipAnalyze:      viper.GetBool("skip-analyze"),
		SkipMerge:        viper.GetBool("skip-merge"),
		SkipLoad:         viper.GetBool("skip-load"),
		DryRun:           viper.GetBool("dry-run"),
		Info:             viper.GetBool("info"),
	}

	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	if cfg.ThrottleInterval <= 0 {
		cfg.ThrottleInterval = DefaultThrottleInterval
	}
	if cfg.CatalogBaseURL == "" {
		cfg.CatalogBaseURL = DefaultCatalogBaseURL
	}

	return cfg
}

// Validate checks the configuration for fatal setup errors.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("%w: root directory is required (use --root or set in config)", ErrInvalidConfig)
	}

	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve root %q: %v", ErrInvalidConfig, c.Root, err)
	}
	c.Root = abs

	info, err := os.Stat(c.Root)
	if err != nil {
		return fmt.Errorf("%w: root does not exist: %s", ErrInvalidConfig, c.Root)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: root is not a directory: %s", ErrInvalidConfig, c.Root)
	}

	if c.MaxTracks < 0 {
		return fmt.Errorf("%w: max-tracks must be >= 0", ErrInvalidConfig)
	}

	return nil
}
