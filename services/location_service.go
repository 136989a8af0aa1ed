package services

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hexmatch/models"
	"hexmatch/utils/errors"
)

type LocationService struct {
	collection *mongo.Collection
}

func NewLocationService(db *mongo.Database) *LocationService {
	collection := db.Collection("locations")

	// One location document per user; ring queries hit the per-resolution
	// index fields.
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	for res := ResolutionMin; res <= ResolutionMax; res++ {
		indexModels = append(indexModels, mongo.IndexModel{
			Keys: bson.D{{Key: fmt.Sprintf("h3_index_%d", res), Value: 1}},
		})
	}
	if _, err := collection.Indexes().CreateMany(context.Background(), indexModels); err != nil {
		log.Printf("Failed to create location indexes: %v", err)
	}

	return &LocationService{collection: collection}
}

// SetLocation stores a coordinate and recomputes the cell index at every
// resolution from it. The document is replaced wholesale so the indexes can
// never disagree with the point or each other.
func (s *LocationService) SetLocation(ctx context.Context, userID string, lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return errors.ErrInvalidInput
	}

	indexes, err := CellIndexes(lat, lon)
	if err != nil {
		return err
	}

	location := models.Location{
		UserID:   userID,
		Location: models.NewGeoPoint(lat, lon),
		H3Index4: indexes[4],
		H3Index5: indexes[5],
		H3Index6: indexes[6],
		H3Index7: indexes[7],
		H3Index8: indexes[8],
	}

	_, err = s.collection.ReplaceOne(
		ctx,
		bson.M{"user_id": userID},
		location,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		log.Printf("Failed to store location for user %s: %v", userID, err)
		return errors.Unavailable(err)
	}
	return nil
}

// IndexAtResolution returns the user's cell index at one resolution,
// 0 when the user has no stored location.
func (s *LocationService) IndexAtResolution(ctx context.Context, userID string, resolution int) (int64, error) {
	var location models.Location
	err := s.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&location)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		log.Printf("Failed to load location for user %s: %v", userID, err)
		return 0, errors.Unavailable(err)
	}
	return location.IndexAt(resolution), nil
}

// QueryByIndexes returns every other user whose cell index at the resolution
// is a member of the given set.
func (s *LocationService) QueryByIndexes(ctx context.Context, resolution int, indexes []int64, excludeUserID string) ([]models.CandidateLocation, error) {
	if resolution < ResolutionMin || resolution > ResolutionMax {
		return nil, errors.ErrInvalidInput
	}
	field := fmt.Sprintf("h3_index_%d", resolution)

	cursor, err := s.collection.Find(ctx, bson.M{
		field:     bson.M{"$in": indexes},
		"user_id": bson.M{"$ne": excludeUserID},
	})
	if err != nil {
		log.Printf("Ring query failed at resolution %d: %v", resolution, err)
		return nil, errors.Unavailable(err)
	}
	defer cursor.Close(ctx)

	var locations []models.Location
	if err := cursor.All(ctx, &locations); err != nil {
		return nil, errors.Unavailable(err)
	}

	candidates := make([]models.CandidateLocation, 0, len(locations))
	for _, location := range locations {
		candidates = append(candidates, models.CandidateLocation{
			UserID: location.UserID,
			Index:  location.IndexAt(resolution),
		})
	}
	return candidates, nil
}
