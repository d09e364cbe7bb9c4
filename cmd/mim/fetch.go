package main

import (
	"fmt"

	"github.com/franz/music-importer/internal/fetch"
	"github.com/franz/music-importer/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch a track's audio into the collection",
	Long: `Download the audio for a catalog track into the library layout
(Artist/Year Album/NN Title.ext), verifying the content hash when one is
given. Fetched files are picked up by the next import pass like any other
track.`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringP("root", "r", "", "collection root")
	fetchCmd.Flags().String("id", "", "catalog track id")
	fetchCmd.Flags().String("artist", "", "artist name")
	fetchCmd.Flags().String("album", "", "album name")
	fetchCmd.Flags().String("title", "", "track title")
	fetchCmd.Flags().Int("year", 0, "release year")
	fetchCmd.Flags().Int("track-no", 0, "track number")
	fetchCmd.Flags().String("hash", "", "expected content hash (verified after download)")
	fetchCmd.Flags().String("fetch-url", "", "content service base URL")
	fetchCmd.MarkFlagRequired("id")
	fetchCmd.MarkFlagRequired("title")

	viper.BindPFlag("fetch-url", fetchCmd.Flags().Lookup("fetch-url"))
}

func runFetch(cmd *cobra.Command, args []string) error {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	root, _ := cmd.Flags().GetString("root")
	if root == "" {
		root = viper.GetString("root")
	}
	if root == "" {
		return fmt.Errorf("%w: root directory is required", util.ErrInvalidConfig)
	}

	baseURL := viper.GetString("fetch-url")
	if baseURL == "" {
		return fmt.Errorf("%w: fetch-url is required", util.ErrInvalidConfig)
	}

	id, _ := cmd.Flags().GetString("id")
	artist, _ := cmd.Flags().GetString("artist")
	album, _ := cmd.Flags().GetString("album")
	title, _ := cmd.Flags().GetString("title")
	year, _ := cmd.Flags().GetInt("year")
	trackNo, _ := cmd.Flags().GetInt("track-no")
	hash, _ := cmd.Flags().GetString("hash")

	fetcher := fetch.NewHTTPFetcher(baseURL, root)
	path, err := fetcher.Fetch(cmd.Context(), fetch.Track{
		ID:           id,
		Artist:       artist,
		Album:        album,
		Title:        title,
		Year:         year,
		TrackNo:      trackNo,
		ExpectedHash: hash,
	})
	if err != nil {
		return err
	}

	fmt.Println(path)
	return nil
}
