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
	materialYear      *int
	materialOut       *string
	materialCourse    *string
	materialOverwrite *bool
)

func init() {
	materialYear = materialCmd.Flags().Int("year", time.Now().Year(), "The academic year to download material for.")
	materialOut = materialCmd.Flags().String("out", "material", "The directory to download material into.")
	materialCourse = materialCmd.Flags().String("course", "", "Only download material for courses matching this name.")
	materialOverwrite = materialCmd.Flags().Bool("overwrite", false, "Redownload files even when the local copy looks current.")
	rootCmd.AddCommand(materialCmd)
}

func serverFilename(f *polito.File) string {
	name, err := f.Filename()
	if err != nil {
		return f.Name()
	}
	return name
}

var materialCmd = &cobra.Command{
	Use:   "material [--year <year>] [--out <dir>] [--course <name>]",
	Short: "Downloads course material, skipping files that are already up to date.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		s := signin(ctx)

		materials, err := polito.GetMaterial(ctx, s, *materialYear)
		if err != nil {
			serviceutil.Fatal("failed to list courses", err)
		}

		opts := polito.SaveOptions{Overwrite: *materialOverwrite}
		var downloaded, unchanged int

		t1 := time.Now()
		for name, material := range materials {
			if *materialCourse != "" && !textutil.MatchName(name, []string{*materialCourse}) {
				continue
			}
			slog.Info("downloading course material", "course", name)

			assignments, err := material.Assignments(ctx, false)
			if err != nil {
				serviceutil.Fatal("failed to list assignments", err)
			}
			for _, assignment := range assignments {
				err := assignment.WalkFiles(ctx, true, false, func(f *polito.File) error {
					dir := filepath.Join(*materialOut, filepath.Dir(f.RelativePath()))
					result, err := f.Save(ctx, dir, serverFilename, opts)
					if err != nil {
						return err
					}
					switch result {
					case polito.SaveDownloaded:
						slog.Info("downloaded", "file", f.RelativePath())
						downloaded++
					case polito.SaveUnchanged:
						slog.Debug("up to date", "file", f.RelativePath())
						unchanged++
					}
					return nil
				})
				if err != nil {
					serviceutil.Fatal("failed to download material", err)
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
