package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/TaxiETL/internal/admin"
)

var resetConfirm bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every trip from the destination table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !resetConfirm {
			return fmt.Errorf("%w: pass --yes to delete all trips", admin.ErrNotConfirmed)
		}

		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := admin.Reset(cmd.Context(), a.store, resetConfirm)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d trips from %s\n", n, a.cfg.Database.Table)
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "confirm the reset")
}
