package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placemark/internal/export"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <output-file>",
	Short: "Export the location registry",
	Long:  "Writes every location to a file as a GeoJSON FeatureCollection or an XLSX spreadsheet.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("job"); err != nil {
			return err
		}

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		f, err := os.Create(args[0])
		if err != nil {
			return eris.Wrap(err, "export: create output file")
		}
		defer f.Close()

		switch exportFormat {
		case "geojson":
			err = export.WriteGeoJSON(ctx, store, f)
		case "xlsx":
			err = export.WriteXLSX(ctx, store, f)
		default:
			return eris.Errorf("unsupported export format: %s", exportFormat)
		}
		if err != nil {
			return err
		}

		zap.L().Info("export complete", zap.String("path", args[0]), zap.String("format", exportFormat))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "geojson", "output format: geojson or xlsx")
	rootCmd.AddCommand(exportCmd)
}
