package main

import (
	"database/sql"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mangaverse/pkg/database"
	"mangaverse/pkg/utils"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "mangaverse",
	Short: "Manga publishing and community server",
	Long:  "Serve the MangaVerse API and run maintenance tasks against its database and media store.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.LoadDotEnv()
		setupLogger(utils.LoadServerConfig().Env)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default $MANGAVERSE_DB_PATH or ~/.mangaverse/data.db)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(catalogCmd)
}

func setupLogger(env string) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// openDB opens and migrates the configured database.
func openDB() (*sql.DB, error) {
	cfg := database.DefaultConfig()
	if dbPath != "" {
		cfg.Path = dbPath
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
