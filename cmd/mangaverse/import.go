package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mangaverse/internal/auth"
	"mangaverse/internal/manga"
)

var importOwner string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load catalog data",
}

var importCSVCmd = &cobra.Command{
	Use:   "csv [file]",
	Short: "Create or update mangas from a CSV file",
	Long: "Reads title, author, genre and synopsis columns (and optionally slug).\n" +
		"Every row becomes a manga owned by --owner; rows whose slug the owner\n" +
		"already has update that manga instead.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		owner, err := auth.NewRepo(db).GetByUsername(ctx, importOwner)
		if err != nil {
			return err
		}
		if owner == nil {
			return fmt.Errorf("user %q not found", importOwner)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		res, err := manga.NewRepo(db).ImportCSV(ctx, f, owner.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d, skipped %d\n", res.Created, res.Updated, res.Skipped)
		return nil
	},
}

func init() {
	importCSVCmd.Flags().StringVar(&importOwner, "owner", "", "username that will own the imported mangas")
	_ = importCSVCmd.MarkFlagRequired("owner")
	importCmd.AddCommand(importCSVCmd)
}
