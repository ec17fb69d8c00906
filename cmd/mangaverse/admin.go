package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mangaverse/internal/auth"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var adminPromoteCmd = &cobra.Command{
	Use:   "promote [username]",
	Short: "Grant administrator rights to a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAdmin(cmd, args[0], true)
	},
}

var adminDemoteCmd = &cobra.Command{
	Use:   "demote [username]",
	Short: "Revoke administrator rights from a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAdmin(cmd, args[0], false)
	},
}

func init() {
	adminCmd.AddCommand(adminPromoteCmd)
	adminCmd.AddCommand(adminDemoteCmd)
}

func setAdmin(cmd *cobra.Command, username string, admin bool) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := auth.NewRepo(db).SetAdmin(cmd.Context(), username, admin); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: admin=%t\n", username, admin)
	return nil
}
