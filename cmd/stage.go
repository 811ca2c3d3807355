package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stageChangedBy string

var stageCmd = &cobra.Command{
	Use:   "stage <lead-id> <stage>",
	Short: "Move a lead to a new stage and record the transition",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.UpdateStage(ctx, args[0], args[1], stageChangedBy); err != nil {
			return err
		}
		fmt.Printf("lead %s moved to %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	stageCmd.Flags().StringVar(&stageChangedBy, "by", "cli", "who performed the stage change")
	rootCmd.AddCommand(stageCmd)
}
