package main

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "One-shot synchronization jobs",
}

func init() {
	syncCmd.AddCommand(syncDirectoryCmd)
}

var syncDirectoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Mirror tracker organizations and customers once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.sync.Run(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("organizations=%d users=%d deactivated_orgs=%d deactivated_users=%d\n",
			res.Organizations, res.Users, res.DeactivatedOrganizations, res.DeactivatedUsers)
		return nil
	},
}
