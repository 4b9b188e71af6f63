package commands

import (
	"log/slog"
	"path/filepath"
	"time"

	"politodown/lib/polito"
	"politodown/lib/serviceutil"
	"politodown/lib/textutil"

	"github.com/spf13/cobra"
)

var (
	videoYear      *int
	videoOut       *string
	videoCourse    *string
	videoOverwrite *bool
)

func init() {
	videoYear = videoCmd.Flags().Int("year", time.Now().Year(), "The academic year to download video lessons for.")
	videoOut = videoCmd.Flags().String("out", "videos", "The directory to download video lessons into.")
	videoCourse = videoCmd.Flags().String("course", "", "Only download video lessons for courses matching this name.")
	videoOverwrite = videoCmd.Flags().Bool("overwrite", false, "Redownload files even when the local copy looks current.")
	rootCmd.AddCommand(videoCmd)
}

var videoCmd = &cobra.Command{
	Use:   "video [--year <year>] [--out <dir>] [--course <name>]",
	Short: "Downloads video lessons, skipping files that are already up to date.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		s := signin(ctx)

		stores, err := polito.GetVideostores(ctx, s, *videoYear)
		if err != nil {
			serviceutil.Fatal("failed to list video catalogs", err)
		}

		opts := polito.SaveOptions{Overwrite: *videoOverwrite}
		var downloaded, unchanged int

		t1 := time.Now()
		for course, editions := range stores {
			if *videoCourse != "" && !textutil.MatchName(course, []string{*videoCourse}) {
				continue
			}
			for edition, store := range editions {
				slog.Info("downloading video lessons", "course", course, "edition", edition)

				lessons, err := store.Videolessons(ctx, false)
				if err != nil {
					serviceutil.Fatal("failed to list video lessons", err)
				}
				for _, lesson := range lessons {
					dir := filepath.Join(*videoOut, store.RelativePath())
					result, err := lesson.Save(ctx, dir, serverFilename, opts)
					if err != nil {
						serviceutil.Fatal("failed to download video lesson", err)
					}
					switch result {
					case polito.SaveDownloaded:
						slog.Info("downloaded", "lesson", lesson.Name())
						downloaded++
					case polito.SaveUnchanged:
						slog.Debug("up to date", "lesson", lesson.Name())
						unchanged++
					}
				}
			}
		}
		t2 := time.Now()

		slog.Info(
			"done",
			"downloaded", downloaded,
			"unchanged", unchanged,
			"seconds", t2.Sub(t1).Seconds(),
		)
	},
}
