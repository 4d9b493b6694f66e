package hierarchy

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placemark/internal/location"
)

func mustCreate(t *testing.T, store *location.MemStore, loc *location.Location) string {
	t.Helper()
	id, err := store.CreateLocation(context.Background(), loc)
	require.NoError(t, err)
	return id
}

func TestApply_SetLandmarkParent(t *testing.T) {
	ctx := context.Background()
	store := location.NewMemStore()
	mgr := NewManager(store)

	cityID := mustCreate(t, store, &location.Location{City: "Paris", Country: "France", Type: location.TypeCity})
	lmID := mustCreate(t, store, &location.Location{Name: "Louvre"})

	got, err := mgr.Apply(ctx, lmID, location.TypeChange{Type: location.TypeLandmark, ParentID: &cityID})
	require.NoError(t, err)
	assert.Equal(t, lmID, got)

	lm, err := store.GetLocation(ctx, lmID)
	require.NoError(t, err)
	assert.Equal(t, location.TypeLandmark, lm.Type)
	require.NotNil(t, lm.ParentID)
	assert.Equal(t, cityID, *lm.ParentID)
}

func TestApply_RejectsSelfParent(t *testing.T) {
	ctx := context.Background()
	store := location.NewMemStore()
	mgr := NewManager(store)

	id := mustCreate(t, store, &location.Location{Name: "Louvre"})

	_, err := mgr.Apply(ctx, id, location.TypeChange{Type: location.TypeLandmark, ParentID: &id})
	require.Error(t, err)
	assert.True(t, eris.Is(err, location.ErrInvalidHierarchy))

	loc, err := store.GetLocation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, location.TypeUnset, loc.Type)
	assert.Nil(t, loc.ParentID)
}

func TestApply_RejectsLandmarkParent(t *testing.T) {
	ctx := context.Background()
	store := location.NewMemStore()
	mgr := NewManager(store)

	cityID := mustCreate(t, store, &location.Location{City: "Paris", Type: location.TypeCity})
	otherID := mustCreate(t, store, &location.Location{Name: "Louvre", Type: location.TypeLandmark, ParentID: &cityID})
	id := mustCreate(t, store, &location.Location{Name: "Orsay"})

	_, err := mgr.Apply(ctx, id, location.TypeChange{Type: location.TypeLandmark, ParentID: &otherID})
	require.Error(t, err)
	assert.True(t, eris.Is(err, location.ErrInvalidHierarchy))
}

func TestApply_RejectsMissingParent(t *testing.T) {
	ctx := context.Background()
	store := location.NewMemStore()
	mgr := NewManager(store)

	id := mustCreate(t, store, &location.Location{Name: "Louvre"})
	missing := "zzzzzzzz"

	_, err := mgr.Apply(ctx, id, location.TypeChange{Type: location.TypeLandmark, ParentID: &missing})
	require.Error(t, err)
	assert.True(t, eris.Is(err, location.ErrNotFound))
}

func TestApply_RejectsParentOnCity(t *testing.T) {
	ctx := context.Background()
	store := location.NewMemStore()
	mgr := NewManager(store)

	parentID := mustCreate(t, store, &location.Location{City: "Paris", Type: location.TypeCity})
	id := mustCreate(t, store, &location.Location{City: "Lyon"})

	_, err := mgr.Apply(ctx, id, location.TypeChange{Type: location.TypeCity, ParentID: &parentID})
	require.Error(t, err)
	assert.True(t, eris.Is(err, location.ErrInvalidHierarchy))
}

func TestApply_CityToUnsetOrphansChildren(t *testing.T) {
	ctx := context.Background()
	store := location.NewMemStore()
	mgr := NewManager(store)

	cityID := mustCreate(t, store, &location.Location{City: "Paris", Type: location.TypeCity})
	a := mustCreate(t, store, &location.Location{Name: "Louvre", Type: location.TypeLandmark, ParentID: &cityID})
	b := mustCreate(t, store, &location.Location{Name: "Orsay", Type: location.TypeLandmark, ParentID: &cityID})

	got, err := mgr.Apply(ctx, cityID, location.TypeChange{Type: location.TypeUnset})
	require.NoError(t, err)
	assert.Equal(t, cityID, got)

	for _, id := range []string{a, b} {
		child, err := store.GetLocation(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, child.ParentID)
	}
	city, err := store.GetLocation(ctx, cityID)
	require.NoError(t, err)
	assert.Equal(t, location.TypeUnset, city.Type)
}

func TestApply_CityToLandmarkOrphansAndNests(t *testing.T) {
	ctx := context.Background()
	store := location.NewMemStore()
	mgr := NewManager(store)

	cityID := mustCreate(t, store, &location.Location{
		Lat: 48.8566, Lon: 2.3522, City: "Paris", Country: "France", Type: location.TypeCity,
	})
	a := mustCreate(t, store, &location.Location{Name: "Louvre", Type: location.TypeLandmark, ParentID: &cityID})
	b := mustCreate(t, store, &location.Location{Name: "Orsay", Type: location.TypeLandmark, ParentID: &cityID})

	got, err := mgr.Apply(ctx, cityID, location.TypeChange{Type: location.TypeLandmark})
	require.NoError(t, err)
	assert.NotEqual(t, cityID, got)

	// The previous children are orphaned, never left dangling.
	for _, id := range []string{a, b} {
		child, err := store.GetLocation(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, child.ParentID)
	}

	// A fresh auto-named landmark sits under the city.
	created, err := store.GetLocation(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, location.TypeLandmark, created.Type)
	require.NotNil(t, created.ParentID)
	assert.Equal(t, cityID, *created.ParentID)
	assert.Equal(t, "Paris 1", created.Name)
}

func TestApply_CityToLandmarkNumbersSequentially(t *testing.T) {
	ctx := context.Background()
	store := location.NewMemStore()
	mgr := NewManager(store)

	cityID := mustCreate(t, store, &location.Location{City: "Paris", Type: location.TypeCity})

	first, err := mgr.Apply(ctx, cityID, location.TypeChange{Type: location.TypeLandmark})
	require.NoError(t, err)
	second, err := mgr.Apply(ctx, cityID, location.TypeChange{Type: location.TypeLandmark})
	require.NoError(t, err)

	a, err := store.GetLocation(ctx, first)
	require.NoError(t, err)
	b, err := store.GetLocation(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "Paris 1", a.Name)
	assert.Equal(t, "Paris 2", b.Name)
}

func TestApply_LandmarkToCityRedirectsToParent(t *testing.T) {
	ctx := context.Background()
	store := location.NewMemStore()
	mgr := NewManager(store)

	cityID := mustCreate(t, store, &location.Location{City: "Paris", Type: location.TypeCity})
	lmID := mustCreate(t, store, &location.Location{Name: "Louvre", Type: location.TypeLandmark, ParentID: &cityID})

	got, err := mgr.Apply(ctx, lmID, location.TypeChange{Type: location.TypeCity})
	require.NoError(t, err)
	assert.Equal(t, cityID, got)

	// The landmark itself is untouched.
	lm, err := store.GetLocation(ctx, lmID)
	require.NoError(t, err)
	assert.Equal(t, location.TypeLandmark, lm.Type)
}

func TestApply_ParentlessLandmarkPromotedToCity(t *testing.T) {
	ctx := context.Background()
	store := location.NewMemStore()
	mgr := NewManager(store)

	lmID := mustCreate(t, store, &location.Location{Name: "Louvre", Type: location.TypeLandmark})

	got, err := mgr.Apply(ctx, lmID, location.TypeChange{Type: location.TypeCity})
	require.NoError(t, err)
	assert.Equal(t, lmID, got)

	loc, err := store.GetLocation(ctx, lmID)
	require.NoError(t, err)
	assert.Equal(t, location.TypeCity, loc.Type)
}

func TestApply_UnknownLocation(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(location.NewMemStore())

	_, err := mgr.Apply(ctx, "nope", location.TypeChange{Type: location.TypeCity})
	require.Error(t, err)
	assert.True(t, eris.Is(err, location.ErrNotFound))
}

func TestApply_UnknownType(t *testing.T) {
	ctx := context.Background()
	store := location.NewMemStore()
	mgr := NewManager(store)
	id := mustCreate(t, store, &location.Location{Name: "Louvre"})

	_, err := mgr.Apply(ctx, id, location.TypeChange{Type: location.Type("village")})
	require.Error(t, err)
	assert.True(t, eris.Is(err, location.ErrInvalidHierarchy))
}
