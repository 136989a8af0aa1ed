package services

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hexmatch/models"
	"hexmatch/utils/errors"
)

// Notifier delivers the mutual-match notification out of band.
type Notifier interface {
	NotifyMatch(ctx context.Context, a, b models.User) error
}

// UserGetter resolves a user by public id.
type UserGetter interface {
	GetUser(ctx context.Context, publicID string) (models.User, error)
}

// LikeStore persists like rows. RecordLike reports whether the like was
// newly inserted and whether that insert completed the mutual pair; a
// repeated like returns (false, false, nil).
type LikeStore interface {
	RecordLike(ctx context.Context, ownerID, targetID string) (inserted, matched bool, err error)
}

type MatchService struct {
	likes    LikeStore
	users    UserGetter
	notifier Notifier
}

func NewMatchService(likes LikeStore, users UserGetter, notifier Notifier) *MatchService {
	return &MatchService{
		likes:    likes,
		users:    users,
		notifier: notifier,
	}
}

// Like records a positive match action from owner towards target and reports
// whether anything was recorded. A repeated like is tolerated, still counts
// as recorded, and never notifies twice; a self-like is a no-op. When the
// reverse like already exists the pair has matched and both sides get
// notified.
func (s *MatchService) Like(ctx context.Context, ownerID, targetID string) (bool, error) {
	if ownerID == targetID {
		return false, nil
	}

	target, err := s.users.GetUser(ctx, targetID)
	if err != nil {
		return false, err
	}

	_, matched, err := s.likes.RecordLike(ctx, ownerID, targetID)
	if err != nil {
		return false, err
	}

	if matched {
		owner, err := s.users.GetUser(ctx, ownerID)
		if err != nil {
			return true, err
		}
		if err := s.notifier.NotifyMatch(ctx, owner, target); err != nil {
			// The like is already durable; a lost notification is not
			// worth failing the request over.
			log.Printf("Failed to enqueue match notification for %s/%s: %v", ownerID, targetID, err)
		}
	}

	return true, nil
}

// LikeRepository stores like rows in MongoDB, one document per directed
// like, deduplicated by a unique compound index.
type LikeRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type like struct {
	OwnerID   string    `bson:"owner_like_id"`
	TargetID  string    `bson:"target_like_id"`
	CreatedAt time.Time `bson:"created_at"`
}

func NewLikeRepository(client *mongo.Client, db *mongo.Database) *LikeRepository {
	collection := db.Collection("likes")

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "owner_like_id", Value: 1}, {Key: "target_like_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := collection.Indexes().CreateOne(context.Background(), indexModel); err != nil {
		log.Printf("Failed to create unique index on likes: %v", err)
	}

	return &LikeRepository{client: client, collection: collection}
}

// RecordLike inserts the like and checks for the reverse row in one
// transaction. A duplicate insert short-circuits without the mutual check:
// if the pair matched, the notification already went out with the first
// insert, and repeating the check here would notify again on every repeat.
func (r *LikeRepository) RecordLike(ctx context.Context, ownerID, targetID string) (bool, bool, error) {
	session, err := r.client.StartSession()
	if err != nil {
		return false, false, errors.Unavailable(err)
	}
	defer session.EndSession(ctx)

	type outcome struct {
		inserted bool
		matched  bool
	}

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		_, err := r.collection.InsertOne(sc, like{
			OwnerID:   ownerID,
			TargetID:  targetID,
			CreatedAt: time.Now().UTC(),
		})
		if mongo.IsDuplicateKeyError(err) {
			return outcome{}, nil
		}
		if err != nil {
			return outcome{}, errors.Unavailable(err)
		}

		count, err := r.collection.CountDocuments(sc, bson.M{"$or": bson.A{
			bson.M{"owner_like_id": ownerID, "target_like_id": targetID},
			bson.M{"owner_like_id": targetID, "target_like_id": ownerID},
		}})
		if err != nil {
			return outcome{}, errors.Unavailable(err)
		}
		return outcome{inserted: true, matched: count == 2}, nil
	})
	if err != nil {
		return false, false, err
	}

	o, _ := result.(outcome)
	return o.inserted, o.matched, nil
}
