package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placemark/internal/db"
	"github.com/sells-group/placemark/internal/hierarchy"
	"github.com/sells-group/placemark/internal/ingest"
	"github.com/sells-group/placemark/internal/location"
)

var importResolve bool

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Bulk-load markers from a CSV file",
	Long:  "Loads markers from a CSV with columns id,latitude,longitude,city,district,country. Re-importing the same file updates existing markers in place. With --resolve, unassigned markers are clustered afterwards.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("job"); err != nil {
			return err
		}

		markers, err := readMarkersCSV(args[0])
		if err != nil {
			return err
		}
		zap.L().Info("parsed markers", zap.Int("count", len(markers)), zap.String("file", args[0]))

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if pg, ok := store.(*location.PostgresStore); ok {
			n, err := bulkLoadMarkers(cmd, pg, markers)
			if err != nil {
				return err
			}
			zap.L().Info("bulk upsert complete", zap.Int64("rows", n))
		} else {
			for i := range markers {
				if err := store.PutMarker(ctx, &markers[i]); err != nil {
					return eris.Wrapf(err, "import: marker %s", markers[i].ID)
				}
			}
			zap.L().Info("markers loaded", zap.Int("rows", len(markers)))
		}

		if importResolve {
			assigned, err := ingest.NewService(store).ResolveUnassigned(ctx)
			if err != nil {
				return eris.Wrap(err, "import: resolve")
			}
			zap.L().Info("resolved imported markers", zap.Int("assigned", assigned))
		}

		return nil
	},
}

// readMarkersCSV parses the import file. The header row is required and place
// fields are normalized the same way the event path normalizes them.
func readMarkersCSV(path string) ([]location.Marker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "import: open file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "import: read header")
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"id", "latitude", "longitude"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("import: missing column %q", required)
		}
	}
	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var markers []location.Marker
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "import: line %d", line)
		}

		lat, err := strconv.ParseFloat(field(record, "latitude"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "import: line %d: latitude", line)
		}
		lon, err := strconv.ParseFloat(field(record, "longitude"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "import: line %d: longitude", line)
		}
		id := field(record, "id")
		if id == "" {
			return nil, eris.Errorf("import: line %d: id is required", line)
		}

		markers = append(markers, location.Marker{
			ID:       id,
			Lat:      lat,
			Lon:      lon,
			City:     hierarchy.CityKey(field(record, "city")),
			District: hierarchy.CityKey(field(record, "district")),
			Country:  hierarchy.CityKey(field(record, "country")),
		})
	}
	return markers, nil
}

// bulkLoadMarkers pushes the whole batch through a COPY-based upsert instead
// of row-at-a-time inserts.
func bulkLoadMarkers(cmd *cobra.Command, pg *location.PostgresStore, markers []location.Marker) (int64, error) {
	rows := make([][]any, 0, len(markers))
	for i := range markers {
		m := &markers[i]
		rows = append(rows, []any{m.ID, m.Lat, m.Lon, m.City, m.District, m.Country})
	}

	n, err := db.BulkUpsert(cmd.Context(), pg.Pool(), db.UpsertConfig{
		Table:        "markers",
		Columns:      []string{"id", "latitude", "longitude", "city", "district", "country"},
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "import: bulk upsert")
	}
	return n, nil
}

func init() {
	importCmd.Flags().BoolVar(&importResolve, "resolve", true, "cluster unassigned markers after loading")
	rootCmd.AddCommand(importCmd)
}
