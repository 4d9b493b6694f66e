package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/placemark/internal/hierarchy"
)

var repairReportPath string

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Re-attach orphan landmarks to their cities",
	Long:  "Scans landmark locations without a parent, matches each to a city by exact city and country, creates missing cities, and records the run. Safe to re-run.",
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

		report, err := hierarchy.NewRepairer(store).Run(ctx)
		if err != nil {
			return eris.Wrap(err, "repair")
		}

		zap.L().Info("repair complete",
			zap.Int("total_orphans", report.TotalOrphans),
			zap.Int("fixed", report.Fixed),
			zap.Int("failed", report.Failed),
			zap.Int("cities_created", report.CitiesCreated))

		if repairReportPath != "" {
			out, err := yaml.Marshal(report)
			if err != nil {
				return eris.Wrap(err, "repair: marshal report")
			}
			if err := os.WriteFile(repairReportPath, out, 0o644); err != nil {
				return eris.Wrap(err, "repair: write report")
			}
			zap.L().Info("report written", zap.String("path", repairReportPath))
		}

		return nil
	},
}

func init() {
	repairCmd.Flags().StringVar(&repairReportPath, "report", "", "write a YAML report to this path")
	rootCmd.AddCommand(repairCmd)
}
