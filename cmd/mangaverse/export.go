package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mangaverse/internal/chapter"
	"mangaverse/internal/manga"
	"mangaverse/internal/media"
	"mangaverse/pkg/utils"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export catalog content",
}

var exportEpubCmd = &cobra.Command{
	Use:   "epub [manga-slug] [chapter-slug]",
	Short: "Write a chapter as an EPUB file",
	Args:  cobra.ExactArgs(2),
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
		panels, err := chapters.ListPanels(ctx, ch.ID)
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = chapter.EPUBFilename(m, ch)
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		if err := chapter.WriteEPUB(ctx, store, m, ch, panels, f); err != nil {
			_ = f.Close()
			_ = os.Remove(out)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d pages)\n", out, len(panels))
		return nil
	},
}

var exportCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Write the catalog as CSV (stdout unless -o is given)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		out := cmd.OutOrStdout()
		if exportOut != "" {
			if err := os.MkdirAll(filepath.Dir(exportOut), 0o755); err != nil {
				return err
			}
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOut, err)
			}
			defer f.Close()
			out = f
		}

		n, err := manga.NewRepo(db).ExportCSV(cmd.Context(), out)
		if err != nil {
			return err
		}
		if exportOut != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d mangas to %s\n", n, exportOut)
		}
		return nil
	},
}

func init() {
	exportCmd.PersistentFlags().StringVarP(&exportOut, "out", "o", "", "output file (epub default <manga>-<chapter>.epub)")
	exportCmd.AddCommand(exportEpubCmd)
	exportCmd.AddCommand(exportCSVCmd)
}
