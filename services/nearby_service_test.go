package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	h3 "github.com/uber/h3-go/v4"

	"hexmatch/models"
	"hexmatch/utils/errors"
)

type fakeLocationStore struct {
	indexes map[string]map[int]int64

	queriedResolution int
	queriedRing       []int64
	err               error
}

func (f *fakeLocationStore) IndexAtResolution(_ context.Context, userID string, resolution int) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.indexes[userID][resolution], nil
}

func (f *fakeLocationStore) QueryByIndexes(_ context.Context, resolution int, ring []int64, excludeUserID string) ([]models.CandidateLocation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queriedResolution = resolution
	f.queriedRing = ring

	members := make(map[int64]struct{}, len(ring))
	for _, index := range ring {
		members[index] = struct{}{}
	}

	var candidates []models.CandidateLocation
	for userID, byRes := range f.indexes {
		if userID == excludeUserID {
			continue
		}
		if _, ok := members[byRes[resolution]]; ok {
			candidates = append(candidates, models.CandidateLocation{UserID: userID, Index: byRes[resolution]})
		}
	}
	return candidates, nil
}

type fakeUserStore struct {
	users []models.User

	gotIDs     []string
	gotFilters models.UserFilters
	gotSort    *bool
	err        error
}

func (f *fakeUserStore) QueryByIDsWithFilters(_ context.Context, ids []string, filters models.UserFilters, sortByCreated *bool) ([]models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gotIDs = ids
	f.gotFilters = filters
	f.gotSort = sortByCreated

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	var result []models.User
	for _, user := range f.users {
		if _, ok := wanted[user.PublicID]; !ok {
			continue
		}
		if filters.Sex != "" && user.Sex != filters.Sex {
			continue
		}
		if filters.FirstName != "" && user.FirstName != filters.FirstName {
			continue
		}
		if filters.LastName != "" && user.LastName != filters.LastName {
			continue
		}
		result = append(result, user)
	}
	return result, nil
}

func mustIndexes(t *testing.T, lat, lon float64) map[int]int64 {
	t.Helper()
	indexes, err := CellIndexes(lat, lon)
	require.NoError(t, err)
	return indexes
}

func TestFindNearby(t *testing.T) {
	ctx := context.Background()

	// One candidate in the requester's own cell, one a couple of km out.
	requester := mustIndexes(t, moscowLat, moscowLon)
	sameCell := mustIndexes(t, moscowLat, moscowLon)
	nextDoor := mustIndexes(t, 55.7740, 37.6320)

	locations := func() *fakeLocationStore {
		return &fakeLocationStore{indexes: map[string]map[int]int64{
			"auth":      requester,
			"same-cell": sameCell,
			"next-door": nextDoor,
		}}
	}
	users := func() *fakeUserStore {
		return &fakeUserStore{users: []models.User{
			{PublicID: "same-cell", FirstName: "Anna", LastName: "Petrova", Sex: "F"},
			{PublicID: "next-door", FirstName: "Boris", LastName: "Ivanov", Sex: "M"},
		}}
	}

	t.Run("zero radius is rejected", func(t *testing.T) {
		service := NewNearbyService(locations(), users())
		_, err := service.FindNearby(ctx, models.GeoQuery{RequesterID: "auth", Radius: 0})
		assert.ErrorIs(t, err, errors.ErrNoSearchArea)
	})

	t.Run("missing requester location is rejected", func(t *testing.T) {
		service := NewNearbyService(locations(), users())
		_, err := service.FindNearby(ctx, models.GeoQuery{RequesterID: "nobody", Radius: 1})
		assert.ErrorIs(t, err, errors.ErrNoLocation)
	})

	t.Run("same-cell candidate is dropped at approximate precision", func(t *testing.T) {
		service := NewNearbyService(locations(), users())
		result, err := service.FindNearby(ctx, models.GeoQuery{RequesterID: "auth", Radius: 1})
		require.NoError(t, err)

		ids := make([]string, 0, len(result))
		for _, user := range result {
			assert.Positive(t, user.Distance)
			ids = append(ids, user.ID)
		}
		assert.NotContains(t, ids, "same-cell")
	})

	t.Run("exact mode keeps the coincident candidate", func(t *testing.T) {
		service := NewNearbyService(locations(), users())
		result, err := service.FindNearby(ctx, models.GeoQuery{RequesterID: "auth", Radius: 1, Exact: true})
		require.NoError(t, err)

		byID := make(map[string]models.NearbyUser, len(result))
		for _, user := range result {
			byID[user.ID] = user
		}
		require.Contains(t, byID, "same-cell")
		assert.Zero(t, byID["same-cell"].Distance)
	})

	t.Run("distances come from cell centers at the query resolution", func(t *testing.T) {
		params := SelectResolution(5, false)
		ring := NearIndexes(requester[params.Resolution], 5, params)

		// Plant a candidate in a neighboring cell of the ring so the
		// cell-center distance is positive by construction.
		var neighbor int64
		for _, cell := range ring {
			if cell != requester[params.Resolution] {
				neighbor = cell
				break
			}
		}
		require.NotZero(t, neighbor)
		center, err := h3.CellToLatLng(h3.Cell(neighbor))
		require.NoError(t, err)
		neighborIndexes := mustIndexes(t, center.Lat, center.Lng)

		locationStore := &fakeLocationStore{indexes: map[string]map[int]int64{
			"auth":     requester,
			"neighbor": neighborIndexes,
		}}
		userStore := &fakeUserStore{users: []models.User{
			{PublicID: "neighbor", FirstName: "Boris", LastName: "Ivanov", Sex: "M"},
		}}
		service := NewNearbyService(locationStore, userStore)

		result, err := service.FindNearby(ctx, models.GeoQuery{RequesterID: "auth", Radius: 5})
		require.NoError(t, err)
		require.Len(t, result, 1)

		assert.Equal(t, params.Resolution, locationStore.queriedResolution)
		assert.Contains(t, locationStore.queriedRing, requester[params.Resolution])

		_, _, want, err := CellDistance(requester[params.Resolution], neighborIndexes[params.Resolution], false)
		require.NoError(t, err)
		assert.Positive(t, result[0].Distance)
		assert.InDelta(t, want, result[0].Distance, 1e-9)
	})

	t.Run("filters and sort reach the user store", func(t *testing.T) {
		userStore := users()
		service := NewNearbyService(locations(), userStore)
		descending := false
		result, err := service.FindNearby(ctx, models.GeoQuery{
			RequesterID:   "auth",
			Radius:        5,
			Filters:       models.UserFilters{Sex: "M"},
			SortByCreated: &descending,
		})
		require.NoError(t, err)

		assert.Equal(t, models.UserFilters{Sex: "M"}, userStore.gotFilters)
		require.NotNil(t, userStore.gotSort)
		assert.False(t, *userStore.gotSort)
		for _, user := range result {
			assert.Equal(t, "M", user.Sex)
		}
	})

	t.Run("exact radius is clamped before ring expansion", func(t *testing.T) {
		locationStore := locations()
		service := NewNearbyService(locationStore, users())
		_, err := service.FindNearby(ctx, models.GeoQuery{RequesterID: "auth", Radius: 500000, Exact: true})
		require.NoError(t, err)

		params := SelectResolution(MaxExactRadiusKm, true)
		clamped := NearIndexes(requester[params.Resolution], MaxExactRadiusKm, params)
		assert.Len(t, locationStore.queriedRing, len(clamped))
	})

	t.Run("store failures surface unmodified", func(t *testing.T) {
		service := NewNearbyService(&fakeLocationStore{err: errors.ErrUnavailable}, users())
		_, err := service.FindNearby(ctx, models.GeoQuery{RequesterID: "auth", Radius: 1})
		assert.ErrorIs(t, err, errors.ErrUnavailable)
	})

	t.Run("empty candidate set is a success", func(t *testing.T) {
		service := NewNearbyService(&fakeLocationStore{indexes: map[string]map[int]int64{"auth": requester}}, users())
		result, err := service.FindNearby(ctx, models.GeoQuery{RequesterID: "auth", Radius: 1})
		require.NoError(t, err)
		assert.Empty(t, result)
	})
}
