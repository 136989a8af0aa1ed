package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"hexmatch/middleware"
	"hexmatch/models"
	"hexmatch/services"
	"hexmatch/utils/errors"
)

type UserHandler struct {
	nearbyService   *services.NearbyService
	userService     *services.UserService
	locationService *services.LocationService
	nearbyCache     *services.ResponseCache
	listCache       *services.ResponseCache
}

type NearbyUsersResponse struct {
	NearbyUsers []models.NearbyUser `json:"nearby_users"`
	Count       int                 `json:"count"`
	Radius      float64             `json:"radius"`
	Exact       bool                `json:"exact"`
}

type ClientListResponse struct {
	Users []models.User `json:"users"`
	Count int           `json:"count"`
}

func NewUserHandler(
	nearbyService *services.NearbyService,
	userService *services.UserService,
	locationService *services.LocationService,
	nearbyCache *services.ResponseCache,
	listCache *services.ResponseCache,
) *UserHandler {
	return &UserHandler{
		nearbyService:   nearbyService,
		userService:     userService,
		locationService: locationService,
		nearbyCache:     nearbyCache,
		listCache:       listCache,
	}
}

// GetNearbyUsers serves the proximity search. The whole result is memoized
// per caller; a matching If-None-Match validator short-circuits to 304.
func (h *UserHandler) GetNearbyUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	query, err := parseGeoQuery(userID, r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	response, notModified, err := services.Cached(r.Context(), h.nearbyCache, w, r, userID,
		func(ctx context.Context) (NearbyUsersResponse, error) {
			users, err := h.nearbyService.FindNearby(ctx, query)
			if err != nil {
				return NearbyUsersResponse{}, err
			}
			return NearbyUsersResponse{
				NearbyUsers: users,
				Count:       len(users),
				Radius:      query.Radius,
				Exact:       query.Exact,
			}, nil
		})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if notModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// UpdateLocation sets the caller's coordinate and recomputes every stored
// cell index from it.
func (h *UserHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	var input struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	if err := h.locationService.SetLocation(r.Context(), userID, input.Latitude, input.Longitude); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"result": true})
}

// ListClients serves the public roster. No caller identity here, so the
// cache fingerprint falls back to the query parameters.
func (h *UserHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	response, notModified, err := services.Cached(r.Context(), h.listCache, w, r, "",
		func(ctx context.Context) (ClientListResponse, error) {
			users, err := h.userService.ListUsers(ctx)
			if err != nil {
				return ClientListResponse{}, err
			}
			return ClientListResponse{Users: users, Count: len(users)}, nil
		})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if notModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func parseGeoQuery(userID string, r *http.Request) (models.GeoQuery, error) {
	query := models.GeoQuery{RequesterID: userID, Radius: 1}

	params := r.URL.Query()
	if raw := params.Get("radius"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.GeoQuery{}, errors.ErrInvalidInput
		}
		query.Radius = radius
	}
	if raw := params.Get("exact"); raw != "" {
		exact, err := strconv.ParseBool(raw)
		if err != nil {
			return models.GeoQuery{}, errors.ErrInvalidInput
		}
		query.Exact = exact
	}

	if sex := params.Get("sex"); sex != "" {
		if sex != "M" && sex != "F" {
			return models.GeoQuery{}, errors.ErrInvalidInput
		}
		query.Filters.Sex = sex
	}
	if firstName := params.Get("first_name"); firstName != "" {
		if !namePattern.MatchString(firstName) {
			return models.GeoQuery{}, errors.ErrInvalidInput
		}
		query.Filters.FirstName = firstName
	}
	if lastName := params.Get("last_name"); lastName != "" {
		if !namePattern.MatchString(lastName) {
			return models.GeoQuery{}, errors.ErrInvalidInput
		}
		query.Filters.LastName = lastName
	}

	if raw := params.Get("sort_by_created"); raw != "" {
		sortByCreated, err := strconv.ParseBool(raw)
		if err != nil {
			return models.GeoQuery{}, errors.ErrInvalidInput
		}
		query.SortByCreated = &sortByCreated
	}

	return query, nil
}
