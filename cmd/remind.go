package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/notify"
)

var remindIdleHours int

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Send chat reminders for leads with no recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		idleHours := remindIdleHours
		if idleHours <= 0 {
			idleHours = cfg.Reminder.IdleHours
		}
		cutoff := time.Now().Add(-time.Duration(idleHours) * time.Hour)

		leads, err := st.ListIdleLeads(ctx, cutoff, cfg.Reminder.Limit)
		if err != nil {
			return err
		}

		chat := notify.NewChat(cfg.Chat)
		now := time.Now().UTC()
		sent := 0
		for i := range leads {
			lead := &leads[i]
			if _, err := chat.SendReminder(ctx, lead); err != nil {
				zap.L().Error("reminder send failed",
					zap.String("lead_id", lead.ID),
					zap.Error(err),
				)
				continue
			}
			if err := st.TouchReminder(ctx, lead.ID, now); err != nil {
				zap.L().Error("reminder bookkeeping failed",
					zap.String("lead_id", lead.ID),
					zap.Error(err),
				)
				continue
			}
			sent++
		}

		fmt.Printf("idle=%d reminded=%d\n", len(leads), sent)
		return nil
	},
}

func init() {
	remindCmd.Flags().IntVar(&remindIdleHours, "idle-hours", 0, "idle window in hours (default from config)")
	rootCmd.AddCommand(remindCmd)
}
