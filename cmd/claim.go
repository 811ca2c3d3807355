package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	claimOwner     string
	claimOwnerName string
)

var claimCmd = &cobra.Command{
	Use:   "claim <lead-id>",
	Short: "Assign a lead to an owner and mark it claimed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.ClaimLead(ctx, args[0], claimOwner, claimOwnerName); err != nil {
			return err
		}
		fmt.Printf("lead %s claimed by %s\n", args[0], claimOwnerName)
		return nil
	},
}

func init() {
	claimCmd.Flags().StringVar(&claimOwner, "owner", "", "owner user id")
	claimCmd.Flags().StringVar(&claimOwnerName, "owner-name", "", "owner display name")
	claimCmd.MarkFlagRequired("owner")      //nolint:errcheck
	claimCmd.MarkFlagRequired("owner-name") //nolint:errcheck
	rootCmd.AddCommand(claimCmd)
}
