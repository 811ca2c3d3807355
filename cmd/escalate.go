package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	escalateBy      string
	escalateChannel string
)

var escalateCmd = &cobra.Command{
	Use:   "escalate <lead-id>",
	Short: "Mark a high-priority lead escalated and record the deal channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		channel := escalateChannel
		if channel == "" {
			channel = dealChannelName(args[0])
		}

		if err := st.EscalateLead(ctx, args[0], escalateBy, channel); err != nil {
			return err
		}
		fmt.Printf("lead %s escalated to %s\n", args[0], channel)
		return nil
	},
}

// dealChannelName derives a short channel name from the lead id suffix,
// matching the deal-<suffix> convention used for escalation channels.
func dealChannelName(leadID string) string {
	suffix := leadID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return "deal-" + suffix
}

func init() {
	escalateCmd.Flags().StringVar(&escalateBy, "by", "", "who escalated the lead")
	escalateCmd.Flags().StringVar(&escalateChannel, "channel", "", "deal channel name (derived from the lead id when empty)")
	escalateCmd.MarkFlagRequired("by") //nolint:errcheck
	rootCmd.AddCommand(escalateCmd)
}
