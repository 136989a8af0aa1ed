package models

import "github.com/paulmach/orb"

// GeoPoint is the GeoJSON representation stored alongside the H3 indexes.
// Coordinates are [lon, lat], GeoJSON order.
type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

func NewGeoPoint(lat, lon float64) GeoPoint {
	p := orb.Point{lon, lat}
	return GeoPoint{Type: "Point", Coordinates: []float64{p.Lon(), p.Lat()}}
}

func (g GeoPoint) Lat() float64 {
	if len(g.Coordinates) < 2 {
		return 0
	}
	return orb.Point{g.Coordinates[0], g.Coordinates[1]}.Lat()
}

func (g GeoPoint) Lon() float64 {
	if len(g.Coordinates) < 2 {
		return 0
	}
	return orb.Point{g.Coordinates[0], g.Coordinates[1]}.Lon()
}

// Location is one document per user. Every h3_index_* value derives from the
// same coordinates; they are always rewritten together.
type Location struct {
	UserID   string   `bson:"user_id"`
	Location GeoPoint `bson:"location"`
	H3Index4 int64    `bson:"h3_index_4"`
	H3Index5 int64    `bson:"h3_index_5"`
	H3Index6 int64    `bson:"h3_index_6"`
	H3Index7 int64    `bson:"h3_index_7"`
	H3Index8 int64    `bson:"h3_index_8"`
}

// IndexAt returns the stored cell index for a resolution, 0 when the
// resolution is not one of the stored levels.
func (l Location) IndexAt(resolution int) int64 {
	switch resolution {
	case 4:
		return l.H3Index4
	case 5:
		return l.H3Index5
	case 6:
		return l.H3Index6
	case 7:
		return l.H3Index7
	case 8:
		return l.H3Index8
	}
	return 0
}

// CandidateLocation is one row of a ring-membership query: a user id and its
// cell index at the queried resolution.
type CandidateLocation struct {
	UserID string `bson:"user_id"`
	Index  int64  `bson:"index"`
}

// GeoQuery is the request-scoped input of a nearby search. Radius in km.
type GeoQuery struct {
	RequesterID   string
	Radius        float64
	Exact         bool
	Filters       UserFilters
	SortByCreated *bool // nil: store order, true: oldest first, false: newest first
}

// NearbyUser is the externally visible search result entity.
type NearbyUser struct {
	ID         string  `json:"id"`
	FirstName  string  `json:"firstname"`
	LastName   string  `json:"lastname"`
	Sex        string  `json:"sex"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Distance   float64 `json:"distance"`
	AvatarPath string  `json:"avatar_path"`
}
