package main

import (
	"fmt"
	"os"

	"github.com/franz/music-importer/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "mim",
		Short: "Music Importer - staged metadata import for a local collection",
		Long: `mim (Music Importer) walks a local music collection and runs every
audio file through a resumable four-stage pipeline:

  MATCH    look up the best catalog candidate for the track
  ANALYZE  extract audio features and classifications
  MERGE    reconcile both results into one canonical record
  LOAD     upsert the record into the tracks database

Each stage persists its output as a hidden JSON sidecar next to the
track, so re-running a pass is cheap: completed stages are skipped and
interrupted passes resume where they left off.`,
		Version: Version,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/mim.yaml)")
	rootCmd.PersistentFlags().String("db", util.DefaultDBPath, "tracks database file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("no-color", rootCmd.PersistentFlags().Lookup("no-color"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("mim")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MIM")
	viper.AutomaticEnv()

	if viper.GetBool("no-color") {
		util.SetColors(false)
	}

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
