// Package export serializes the location registry to interchange formats.
package export

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/placemark/internal/location"
)

// WriteGeoJSON writes every location as a point feature in a GeoJSON
// FeatureCollection. Coordinates follow the GeoJSON axis order, longitude
// first.
func WriteGeoJSON(ctx context.Context, store location.Store, w io.Writer) error {
	locs, err := store.ListLocations(ctx)
	if err != nil {
		return eris.Wrap(err, "export: list locations")
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(locs))}
	for i := range locs {
		loc := &locs[i]
		props := map[string]any{
			"city":     loc.City,
			"district": loc.District,
			"country":  loc.Country,
			"name":     loc.Name,
			"type":     string(loc.Type),
		}
		if loc.ParentID != nil {
			props["parent_location_id"] = *loc.ParentID
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         loc.ID,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{loc.Lon, loc.Lat}),
			Properties: props,
		})
	}

	if err := json.NewEncoder(w).Encode(fc); err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	return nil
}
