package main

import (
	"fmt"

	"github.com/franz/music-importer/internal/identity"
	"github.com/spf13/cobra"
)

var hashCmd = &cobra.Command{
	Use:   "hash FILE...",
	Short: "Print the content hash of files",
	Long: `Compute the streaming SHA-256 content hash used as the cross-stage
identity key. Useful for checking why two sidecars disagree.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHash,
}

func init() {
	rootCmd.AddCommand(hashCmd)
}

func runHash(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		hash, err := identity.Hash(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", hash, path)
	}
	return nil
}
