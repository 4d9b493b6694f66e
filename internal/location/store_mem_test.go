package location

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placemark/internal/geo"
)

func TestMemStore_CreateAndGet(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	id, err := s.CreateLocation(ctx, &Location{Lat: 48.8566, Lon: 2.3522, City: "Paris"})
	require.NoError(t, err)
	assert.Len(t, id, 8)

	loc, err := s.GetLocation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Paris", loc.City)
	assert.False(t, loc.CreatedAt.IsZero())

	_, err = s.GetLocation(ctx, "missing1")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestMemStore_FindWithin_InsertionOrder(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	first, err := s.CreateLocation(ctx, &Location{Lat: 48.8570, Lon: 2.3530})
	require.NoError(t, err)
	_, err = s.CreateLocation(ctx, &Location{Lat: 48.8566, Lon: 2.3522})
	require.NoError(t, err)

	// Probe point coincides with the second location, but the first inserted
	// in-range location wins.
	id, found, err := s.FindWithin(ctx, geo.Point{Lat: 48.8566, Lon: 2.3522}, ThresholdKm)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, first, id)
}

func TestMemStore_DeleteLocation_NullsReferences(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	cityID, err := s.CreateLocation(ctx, &Location{Lat: 1, Lon: 1, Type: TypeCity, City: "Paris"})
	require.NoError(t, err)
	childID, err := s.CreateLocation(ctx, &Location{Lat: 1, Lon: 1, Type: TypeLandmark, ParentID: &cityID})
	require.NoError(t, err)
	require.NoError(t, s.PutMarker(ctx, &Marker{ID: "m1", Lat: 1, Lon: 1, LocationID: &cityID}))

	require.NoError(t, s.DeleteLocation(ctx, cityID))

	child, err := s.GetLocation(ctx, childID)
	require.NoError(t, err)
	assert.Nil(t, child.ParentID)

	m, err := s.GetMarker(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, m.LocationID)
}

func TestMemStore_MembersOf(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	id, err := s.CreateLocation(ctx, &Location{Lat: 48.8568, Lon: 2.3526})
	require.NoError(t, err)
	require.NoError(t, s.PutMarker(ctx, &Marker{ID: "a", Lat: 48.8566, Lon: 2.3522, LocationID: &id}))
	require.NoError(t, s.PutMarker(ctx, &Marker{ID: "b", Lat: 48.8570, Lon: 2.3530, LocationID: &id}))
	require.NoError(t, s.PutMarker(ctx, &Marker{ID: "c", Lat: 51.5074, Lon: -0.1278}))

	points, err := s.MembersOf(ctx, id)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestMemStore_OrphansAndCities(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	cityID, err := s.CreateLocation(ctx, &Location{Lat: 1, Lon: 1, Type: TypeCity, City: "Paris", Country: "France"})
	require.NoError(t, err)
	_, err = s.CreateLocation(ctx, &Location{Lat: 1, Lon: 1, Type: TypeLandmark})
	require.NoError(t, err)
	_, err = s.CreateLocation(ctx, &Location{Lat: 1, Lon: 1, Type: TypeLandmark, ParentID: &cityID})
	require.NoError(t, err)

	orphans, err := s.ListOrphanLandmarks(ctx)
	require.NoError(t, err)
	assert.Len(t, orphans, 1)

	city, err := s.FindCityByName(ctx, "Paris", "France")
	require.NoError(t, err)
	assert.Equal(t, cityID, city.ID)

	_, err = s.FindCityByName(ctx, "London", "UK")
	assert.True(t, eris.Is(err, ErrNotFound))

	n, err := s.OrphanChildren(ctx, cityID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	orphans, err = s.ListOrphanLandmarks(ctx)
	require.NoError(t, err)
	assert.Len(t, orphans, 2)
}

func TestMemStore_CountLandmarkNamePrefix(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	cityID, err := s.CreateLocation(ctx, &Location{Lat: 1, Lon: 1, Type: TypeCity, City: "Paris"})
	require.NoError(t, err)
	_, err = s.CreateLocation(ctx, &Location{Lat: 1, Lon: 1, Type: TypeLandmark, ParentID: &cityID, Name: "Paris 1"})
	require.NoError(t, err)
	_, err = s.CreateLocation(ctx, &Location{Lat: 1, Lon: 1, Type: TypeLandmark, ParentID: &cityID, Name: "Paris 2"})
	require.NoError(t, err)

	n, err := s.CountLandmarkNamePrefix(ctx, cityID, "Paris")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemStore_Stats(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	cityID, err := s.CreateLocation(ctx, &Location{Lat: 1, Lon: 1, Type: TypeCity})
	require.NoError(t, err)
	_, err = s.CreateLocation(ctx, &Location{Lat: 1, Lon: 1, Type: TypeLandmark})
	require.NoError(t, err)
	require.NoError(t, s.PutMarker(ctx, &Marker{ID: "m1", Lat: 1, Lon: 1, LocationID: &cityID}))
	require.NoError(t, s.PutMarker(ctx, &Marker{ID: "m2", Lat: 1, Lon: 1}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Locations)
	assert.Equal(t, int64(1), st.Cities)
	assert.Equal(t, int64(1), st.Landmarks)
	assert.Equal(t, int64(1), st.OrphanLandmarks)
	assert.Equal(t, int64(2), st.Markers)
	assert.Equal(t, int64(1), st.UnassignedMarkers)
}
