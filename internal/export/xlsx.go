package export

import (
	"context"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/placemark/internal/location"
)

var xlsxHeader = []string{
	"id", "latitude", "longitude", "city", "district", "country",
	"name", "type", "parent_location_id", "created_at",
}

// WriteXLSX writes every location to a single-sheet spreadsheet.
func WriteXLSX(ctx context.Context, store location.Store, w io.Writer) error {
	locs, err := store.ListLocations(ctx)
	if err != nil {
		return eris.Wrap(err, "export: list locations")
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Locations")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range xlsxHeader {
		header.AddCell().Value = col
	}

	for i := range locs {
		loc := &locs[i]
		parent := ""
		if loc.ParentID != nil {
			parent = *loc.ParentID
		}
		row := sheet.AddRow()
		for _, v := range []string{
			loc.ID,
			strconv.FormatFloat(loc.Lat, 'f', -1, 64),
			strconv.FormatFloat(loc.Lon, 'f', -1, 64),
			loc.City,
			loc.District,
			loc.Country,
			loc.Name,
			string(loc.Type),
			parent,
			loc.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		} {
			row.AddCell().Value = v
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}
