package services

import (
	"context"

	"hexmatch/models"
	"hexmatch/utils/errors"
)

// LocationStore is the spatial side of a nearby search.
type LocationStore interface {
	IndexAtResolution(ctx context.Context, userID string, resolution int) (int64, error)
	QueryByIndexes(ctx context.Context, resolution int, indexes []int64, excludeUserID string) ([]models.CandidateLocation, error)
}

// UserStore is the attribute side of a nearby search.
type UserStore interface {
	QueryByIDsWithFilters(ctx context.Context, ids []string, filters models.UserFilters, sortByCreated *bool) ([]models.User, error)
}

type NearbyService struct {
	locations LocationStore
	users     UserStore
}

func NewNearbyService(locations LocationStore, users UserStore) *NearbyService {
	return &NearbyService{locations: locations, users: users}
}

// FindNearby runs the whole proximity pipeline: pick a grid resolution for
// the radius, expand the ring around the requester's cell, collect users
// sharing those cells, apply attribute filters and sort, then measure
// per-candidate distance. An empty result is a valid success.
func (s *NearbyService) FindNearby(ctx context.Context, query models.GeoQuery) ([]models.NearbyUser, error) {
	if query.Radius <= 0 {
		return nil, errors.ErrNoSearchArea
	}

	radius := query.Radius
	if query.Exact && radius > MaxExactRadiusKm {
		radius = MaxExactRadiusKm
	}

	params := SelectResolution(radius, query.Exact)

	requesterIndex, err := s.locations.IndexAtResolution(ctx, query.RequesterID, params.Resolution)
	if err != nil {
		return nil, err
	}
	if requesterIndex == 0 {
		return nil, errors.ErrNoLocation
	}

	ring := NearIndexes(requesterIndex, radius, params)

	candidates, err := s.locations.QueryByIndexes(ctx, params.Resolution, ring, query.RequesterID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []models.NearbyUser{}, nil
	}

	// Re-key candidate indexes by user id. The location and attribute
	// queries order rows independently; a positional zip would misalign.
	indexByID := make(map[string]int64, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		indexByID[candidate.UserID] = candidate.Index
		ids = append(ids, candidate.UserID)
	}

	users, err := s.users.QueryByIDsWithFilters(ctx, ids, query.Filters, query.SortByCreated)
	if err != nil {
		return nil, err
	}

	results := make([]models.NearbyUser, 0, len(users))
	for _, user := range users {
		candidateIndex, ok := indexByID[user.PublicID]
		if !ok {
			continue
		}

		lat, lon, dist, err := CellDistance(requesterIndex, candidateIndex, query.Exact)
		if err != nil {
			return nil, err
		}

		// At approximate precision a zero distance is a same-cell artifact,
		// not a genuine coincident location; exact mode keeps it.
		if dist <= 0 && !query.Exact {
			continue
		}

		results = append(results, models.NearbyUser{
			ID:         user.PublicID,
			FirstName:  user.FirstName,
			LastName:   user.LastName,
			Sex:        user.Sex,
			Lat:        lat,
			Lon:        lon,
			Distance:   dist,
			AvatarPath: user.AvatarPath,
		})
	}

	return results, nil
}
