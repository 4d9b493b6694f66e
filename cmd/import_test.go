package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "markers.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadMarkersCSV(t *testing.T) {
	path := writeCSV(t, `id,latitude,longitude,city,district,country
m1,48.8606,2.3376,Paris,1er,France
m2,51.5074,-0.1278,London,,United Kingdom
`)

	markers, err := readMarkersCSV(path)
	require.NoError(t, err)
	require.Len(t, markers, 2)

	assert.Equal(t, "m1", markers[0].ID)
	assert.InDelta(t, 48.8606, markers[0].Lat, 1e-9)
	assert.InDelta(t, 2.3376, markers[0].Lon, 1e-9)
	assert.Equal(t, "Paris", markers[0].City)
	assert.Equal(t, "France", markers[0].Country)

	assert.Equal(t, "m2", markers[1].ID)
	assert.Equal(t, "United Kingdom", markers[1].Country)
}

func TestReadMarkersCSV_NormalizesPlaceFields(t *testing.T) {
	path := writeCSV(t, `id,latitude,longitude,city,district,country
m1,48.8606,2.3376,  Paris ,,France
`)

	markers, err := readMarkersCSV(path)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, "Paris", markers[0].City)
}

func TestReadMarkersCSV_ExtraColumnsIgnored(t *testing.T) {
	path := writeCSV(t, `name,id,latitude,longitude,notes
Louvre,m1,48.8606,2.3376,museum
`)

	markers, err := readMarkersCSV(path)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, "m1", markers[0].ID)
	assert.Empty(t, markers[0].City)
}

func TestReadMarkersCSV_MissingRequiredColumn(t *testing.T) {
	path := writeCSV(t, `id,latitude
m1,48.8606
`)

	_, err := readMarkersCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "longitude")
}

func TestReadMarkersCSV_BadCoordinate(t *testing.T) {
	path := writeCSV(t, `id,latitude,longitude
m1,not-a-number,2.3376
`)

	_, err := readMarkersCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")
}

func TestReadMarkersCSV_MissingID(t *testing.T) {
	path := writeCSV(t, `id,latitude,longitude
,48.8606,2.3376
`)

	_, err := readMarkersCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}
