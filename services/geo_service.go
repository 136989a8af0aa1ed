package services

import (
	"math"

	"github.com/tidwall/geodesic"
	h3 "github.com/uber/h3-go/v4"

	"hexmatch/utils/errors"
)

// GridParams describes one H3 resolution level available to a search:
// the level itself, the largest distance two points inside one of its cells
// can be apart, and the location field holding the precomputed index.
type GridParams struct {
	Resolution    int
	MaxDiameterKm float64
	Field         string
}

// gridLevels is ordered finest to coarsest. Diameters are twice the maximum
// H3 edge length per level, rounded up.
var gridLevels = []GridParams{
	{Resolution: 8, MaxDiameterKm: 1.1, Field: "h3_index_8"},
	{Resolution: 7, MaxDiameterKm: 2.9, Field: "h3_index_7"},
	{Resolution: 6, MaxDiameterKm: 7.5, Field: "h3_index_6"},
	{Resolution: 5, MaxDiameterKm: 19.8, Field: "h3_index_5"},
}

const (
	// ResolutionMin..ResolutionMax is the range of indexes stored per
	// location. Queries only ever select from gridLevels.
	ResolutionMin = 4
	ResolutionMax = 8

	// MaxExactRadiusKm caps exact-mode searches. Precise distance math over
	// an unbounded ring would fan out to a near full scan.
	MaxExactRadiusKm = 150.0

	// maxRingSize bounds the hex disk. 256 rings at the coarsest level span
	// over 5000 km of radius, so the cap only bites on absurd requests that
	// would otherwise ask GridDisk for millions of cells.
	maxRingSize = 256
)

// SelectResolution maps a requested radius (km) to a grid level. Exact mode
// always searches at the finest level. Otherwise the finest level whose cell
// diameter still covers the radius wins; radii beyond every level fall back
// to the coarsest to bound query fan-out.
func SelectResolution(radius float64, exact bool) GridParams {
	if exact {
		return gridLevels[0]
	}
	for _, level := range gridLevels {
		if radius <= level.MaxDiameterKm {
			return level
		}
	}
	return gridLevels[len(gridLevels)-1]
}

// NearIndexes enumerates every cell index within radius km of the center
// cell: the hex disk of ring size ceil(radius/diameter), capped at
// maxRingSize. The result always contains the center itself; an unknown
// center index degrades to just it.
func NearIndexes(center int64, radius float64, params GridParams) []int64 {
	ringSize := int(math.Ceil(radius / params.MaxDiameterKm))
	if ringSize > maxRingSize {
		ringSize = maxRingSize
	}

	cells, err := h3.GridDisk(h3.Cell(center), ringSize)
	if err != nil {
		return []int64{center}
	}

	indexes := make([]int64, 0, len(cells)+1)
	seen := make(map[int64]struct{}, len(cells)+1)
	for _, cell := range append(cells, h3.Cell(center)) {
		if _, ok := seen[int64(cell)]; ok {
			continue
		}
		seen[int64(cell)] = struct{}{}
		indexes = append(indexes, int64(cell))
	}
	return indexes
}

// CellIndexes derives the index of (lat, lon) at every stored resolution,
// keyed by resolution. All values come from the same coordinate and are
// meant to be persisted together.
func CellIndexes(lat, lon float64) (map[int]int64, error) {
	indexes := make(map[int]int64, ResolutionMax-ResolutionMin+1)
	for res := ResolutionMin; res <= ResolutionMax; res++ {
		cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), res)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInvalidInput.ErrorType, "coordinate cannot be indexed", errors.ErrInvalidInput.Status)
		}
		indexes[res] = int64(cell)
	}
	return indexes, nil
}

// Distance returns the distance in km between two coordinates: great-circle
// when approximate is enough, WGS84 geodesic when exact.
func Distance(lat1, lon1, lat2, lon2 float64, exact bool) float64 {
	if exact {
		var meters float64
		geodesic.WGS84.Inverse(lat1, lon1, lat2, lon2, &meters, nil, nil)
		return meters / 1000
	}
	return h3.GreatCircleDistanceKm(h3.NewLatLng(lat1, lon1), h3.NewLatLng(lat2, lon2))
}

// CellDistance resolves both cell indexes to their centers and measures the
// distance between them, returning the candidate's coordinate alongside.
// A missing (zero) index on either side is a request-validation failure.
func CellDistance(requesterIndex, candidateIndex int64, exact bool) (lat, lon, dist float64, err error) {
	if requesterIndex == 0 || candidateIndex == 0 {
		return 0, 0, 0, errors.ErrInvalidInput
	}

	reqCenter, err := h3.CellToLatLng(h3.Cell(requesterIndex))
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, errors.ErrInvalidInput.ErrorType, "invalid requester cell index", errors.ErrInvalidInput.Status)
	}
	candCenter, err := h3.CellToLatLng(h3.Cell(candidateIndex))
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, errors.ErrInvalidInput.ErrorType, "invalid candidate cell index", errors.ErrInvalidInput.Status)
	}

	dist = Distance(reqCenter.Lat, reqCenter.Lng, candCenter.Lat, candCenter.Lng, exact)
	return candCenter.Lat, candCenter.Lng, dist, nil
}
