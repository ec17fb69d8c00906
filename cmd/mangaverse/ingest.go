package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mangaverse/internal/chapter"
	"mangaverse/internal/ingest"
	"mangaverse/internal/manga"
	"mangaverse/internal/media"
	"mangaverse/pkg/utils"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [manga-slug] [chapter-slug] [files...]",
	Short: "Append images, PDFs or CBZ archives to a chapter",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		store, err := media.New(utils.LoadMediaConfig())
		if err != nil {
			return err
		}

		m, err := manga.NewRepo(db).GetBySlug(ctx, args[0])
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("manga %q not found", args[0])
		}
		chapters := chapter.NewRepo(db)
		ch, err := chapters.GetBySlug(ctx, m.ID, args[1])
		if err != nil {
			return err
		}
		if ch == nil {
			return fmt.Errorf("chapter %q not found in %s", args[1], m.Slug)
		}

		files := make([]ingest.Upload, 0, len(args)-2)
		for _, p := range args[2:] {
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			files = append(files, ingest.FromBytes(filepath.Base(p), data))
		}

		pipeline := ingest.NewPipeline(chapters, store, nil)
		res, err := pipeline.Ingest(ctx, ingest.Target{
			ChapterID:   ch.ID,
			Number:      ch.Number,
			MangaSlug:   m.Slug,
			ChapterSlug: ch.Slug,
		}, files)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, p := range res.Created {
			fmt.Fprintf(w, "page %d\t%s\n", p.PageNumber, p.Image)
		}
		for _, f := range res.Failed {
			fmt.Fprintf(w, "failed\t%s\t%s\n", f.File, f.Error)
		}
		return nil
	},
}
