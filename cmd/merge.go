package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placemark/internal/cluster"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge duplicate location clusters",
	Long:  "Scans for pairs of non-city locations within the clustering threshold, moves the newer one's markers to the older one, and deletes the emptied duplicate. Idempotent.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("job"); err != nil {
			return err
		}

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		merger := cluster.NewMerger(store, cluster.NewMaintainer(store))
		report, err := merger.Sweep(ctx)
		if err != nil {
			return eris.Wrap(err, "merge")
		}

		zap.L().Info("merge sweep complete",
			zap.Int("scanned", report.Scanned),
			zap.Int("merged", report.Merged))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
