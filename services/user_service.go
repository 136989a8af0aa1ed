package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"hexmatch/models"
	"hexmatch/utils/errors"
)

type UserService struct {
	client      *mongo.Client
	collection  *mongo.Collection
	redisClient *redis.Client
	locations   *LocationService
	jwtSecret   string
}

type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Sex       string
	Latitude  float64
	Longitude float64
}

func NewUserService(client *mongo.Client, db *mongo.Database, redisClient *redis.Client, locations *LocationService, jwtSecret string) *UserService {
	collection := db.Collection("users")

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := collection.Indexes().CreateOne(context.Background(), indexModel); err != nil {
		log.Printf("Failed to create unique index on users: %v", err)
	}

	return &UserService{
		client:      client,
		collection:  collection,
		redisClient: redisClient,
		locations:   locations,
		jwtSecret:   jwtSecret,
	}
}

// Register creates a new user together with their location. Both writes
// share one transaction: a user without index rows would be invisible to
// every search.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (string, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "HASH_ERROR", "Failed to hash password", errors.ErrInternal.Status)
	}

	user := models.User{
		PublicID:     uuid.New().String(),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		PasswordHash: string(passwordHash),
		Sex:          input.Sex,
		CreatedAt:    time.Now().UTC(),
	}

	session, err := s.client.StartSession()
	if err != nil {
		return "", errors.Unavailable(err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		if _, err := s.collection.InsertOne(sc, user); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, errors.NewAPIError(errors.ErrConflict.ErrorType, "Registration failed. Please check your information.", errors.ErrConflict.Status)
			}
			return nil, errors.Unavailable(err)
		}
		if err := s.locations.SetLocation(sc, user.PublicID, input.Latitude, input.Longitude); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return "", err
	}

	return user.PublicID, nil
}

// Login authenticates a user and returns a JWT
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return "", errors.NewAPIError("UNAUTHORIZED", "Invalid email or password", errors.ErrUnauthorized.Status)
	}
	if err != nil {
		return "", errors.Unavailable(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", errors.NewAPIError("UNAUTHORIZED", "Invalid email or password", errors.ErrUnauthorized.Status)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID": user.PublicID,
		"exp":    time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", errors.Wrap(err, "JWT_ERROR", "Failed to generate token", errors.ErrInternal.Status)
	}

	s.cacheUser(ctx, user)

	return tokenString, nil
}

// GetUser retrieves a user from Redis or MongoDB
func (s *UserService) GetUser(ctx context.Context, publicID string) (models.User, error) {
	var user models.User

	userJSON, err := s.redisClient.Get(ctx, "user:"+publicID).Result()
	if err == nil {
		if err := json.Unmarshal([]byte(userJSON), &user); err == nil {
			return user, nil
		}
		log.Printf("Failed to unmarshal cached user %s", publicID)
	}

	err = s.collection.FindOne(ctx, bson.M{"public_id": publicID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return models.User{}, errors.ErrNotFound
	}
	if err != nil {
		return models.User{}, errors.Unavailable(err)
	}

	s.cacheUser(ctx, user)
	return user, nil
}

// QueryByIDsWithFilters returns the attribute rows of exactly the given
// public ids, narrowed by any equality filters and optionally sorted by
// account creation time (true: oldest first, false: newest first).
func (s *UserService) QueryByIDsWithFilters(ctx context.Context, ids []string, filters models.UserFilters, sortByCreated *bool) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := bson.M{"public_id": bson.M{"$in": ids}}
	if filters.Sex != "" {
		query["sex"] = filters.Sex
	}
	if filters.FirstName != "" {
		query["first_name"] = filters.FirstName
	}
	if filters.LastName != "" {
		query["last_name"] = filters.LastName
	}

	findOptions := options.Find()
	if sortByCreated != nil {
		direction := 1
		if !*sortByCreated {
			direction = -1
		}
		findOptions.SetSort(bson.D{{Key: "created_at", Value: direction}})
	}

	cursor, err := s.collection.Find(ctx, query, findOptions)
	if err != nil {
		log.Printf("User attribute query failed: %v", err)
		return nil, errors.Unavailable(err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, errors.Unavailable(err)
	}
	return users, nil
}

// ListUsers returns the public roster.
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Unavailable(err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, errors.Unavailable(err)
	}
	return users, nil
}

// UpdateAvatarPath writes the stored avatar object path back to the user,
// invalidating the cached copy.
func (s *UserService) UpdateAvatarPath(ctx context.Context, publicID, path string) error {
	_, err := s.collection.UpdateOne(
		ctx,
		bson.M{"public_id": publicID},
		bson.M{"$set": bson.M{"avatar_path": path}},
	)
	if err != nil {
		return errors.Unavailable(err)
	}
	s.redisClient.Del(ctx, "user:"+publicID)
	return nil
}

func (s *UserService) cacheUser(ctx context.Context, user models.User) {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return
	}
	s.redisClient.Set(ctx, "user:"+user.PublicID, userJSON, 24*time.Hour)
}
