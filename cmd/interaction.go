package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-intake/internal/model"
	"github.com/sells-group/lead-intake/internal/pipeline"
)

var (
	interactionType string
	interactionKind string
)

var interactionCmd = &cobra.Command{
	Use:   "interaction <email-or-external-id> <content>",
	Short: "Log an interaction against a lead and rescore it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Pipeline.LogInteraction(ctx, args[0],
			pipeline.IdentifierKind(interactionKind), model.InteractionType(interactionType), args[1])
		if err != nil {
			return err
		}

		fmt.Printf("lead=%s score %d -> %d", out.Lead.ExternalID, out.PreviousScore, out.Score)
		if out.Crossed {
			fmt.Print(" (crossed threshold)")
		}
		fmt.Println()
		return nil
	},
}

func init() {
	interactionCmd.Flags().StringVar(&interactionType, "type", string(model.InteractionNote), "interaction type (call, sms, email, note, meeting, demo)")
	interactionCmd.Flags().StringVar(&interactionKind, "kind", "", "identifier kind (email, external_id; inferred when empty)")
	rootCmd.AddCommand(interactionCmd)
}
