package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncLimit  int
	syncOffset int
	syncAll    bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull leads from the marketing platform and run them through the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if env.SharpSpring == nil {
			return eris.New("sharpspring credentials not configured")
		}

		var records []map[string]any
		if syncAll {
			records, err = env.SharpSpring.GetAllLeads(ctx, nil)
		} else {
			records, err = env.SharpSpring.GetLeads(ctx, syncLimit, syncOffset, nil)
		}
		if err != nil {
			return err
		}
		zap.L().Info("fetched leads", zap.Int("count", len(records)))

		payloads := make([]any, len(records))
		for i, r := range records {
			payloads[i] = r
		}

		sum := env.Pipeline.SyncBatch(ctx, payloads)
		fmt.Printf("processed=%d created=%d updated=%d alerted=%d errored=%d\n",
			sum.Processed, sum.Created, sum.Updated, sum.Alerted, sum.Errored)

		if sum.Errored > 0 {
			zap.L().Warn("sync finished with errors", zap.Int("errored", sum.Errored))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().IntVar(&syncLimit, "limit", 500, "max leads to fetch")
	syncCmd.Flags().IntVar(&syncOffset, "offset", 0, "fetch offset")
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "page through the entire lead list")
	rootCmd.AddCommand(syncCmd)
}
