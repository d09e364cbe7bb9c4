package main

import (
	"fmt"
	"os"

	"github.com/franz/music-importer/internal/store"
	"github.com/franz/music-importer/internal/util"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracks database statistics",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	dbPath := viper.GetString("db")
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database does not exist: %s (run an import first)", dbPath)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	total, err := db.CountTracks()
	if err != nil {
		return err
	}

	var matched, missing int
	db.DB().QueryRow("SELECT COUNT(*) FROM tracks WHERE catalog_id IS NOT NULL").Scan(&matched)
	db.DB().QueryRow("SELECT COUNT(*) FROM tracks WHERE is_missing = 1").Scan(&missing)

	var lastUpdate string
	db.DB().QueryRow("SELECT COALESCE(MAX(updated_at), '') FROM tracks").Scan(&lastUpdate)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Tracks database: %s", dbPath)
	t.AppendRows([]table.Row{
		{"Rows", total},
		{"With catalog match", matched},
		{"Marked missing", missing},
	})
	if lastUpdate != "" {
		t.AppendRow(table.Row{"Last update", lastUpdate})
	}
	t.Render()

	return nil
}
