package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"mangaverse/internal/grpcserver"
	"mangaverse/pkg/utils"
)

var catalogAddr string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Query a running catalog over gRPC",
}

var catalogGetCmd = &cobra.Command{
	Use:   "get [slug]",
	Short: "Show one manga",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(c *grpcserver.Client) (any, error) {
			return c.GetManga(cmd.Context(), &grpcserver.GetMangaRequest{Slug: args[0]})
		})
	},
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search mangas by title, author, synopsis or chapter title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(c *grpcserver.Client) (any, error) {
			return c.SearchManga(cmd.Context(), &grpcserver.SearchMangaRequest{Query: args[0]})
		})
	},
}

var catalogChaptersCmd = &cobra.Command{
	Use:   "chapters [slug]",
	Short: "List the chapters of a manga",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(c *grpcserver.Client) (any, error) {
			return c.ListChapters(cmd.Context(), &grpcserver.ListChaptersRequest{Slug: args[0]})
		})
	},
}

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogAddr, "addr", "", "catalog address (default $MANGAVERSE_GRPC_ADDR)")
	catalogCmd.AddCommand(catalogGetCmd)
	catalogCmd.AddCommand(catalogSearchCmd)
	catalogCmd.AddCommand(catalogChaptersCmd)
}

func withCatalog(cmd *cobra.Command, call func(*grpcserver.Client) (any, error)) error {
	addr := catalogAddr
	if addr == "" {
		addr = utils.LoadServerConfig().GRPCAddr
		if len(addr) > 0 && addr[0] == ':' {
			addr = "localhost" + addr
		}
	}

	conn, err := grpcserver.Dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	cmd.SetContext(ctx)

	resp, err := call(grpcserver.NewClient(conn))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
