package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hexmatch/handlers"
	"hexmatch/middleware"
	"hexmatch/services"
	"hexmatch/tasks"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	jwtSecret := mustEnv("JWT_SECRET")
	mongoURI := mustEnv("MONGODB_URI")
	redisAddr := mustEnv("REDIS_ADDR")

	ctx := context.Background()

	// MongoDB
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalf("MongoDB connection failed: %v", err)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	log.Println("Connected to MongoDB")
	db := mongoClient.Database(envOr("MONGO_DB", "hexmatch"))

	// Redis: one client, constructed here and injected everywhere.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// Background worker shares the Redis instance.
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	}
	asynqClient := asynq.NewClient(redisOpt)
	enqueuer := tasks.NewEnqueuer(asynqClient)

	s3Client, err := minio.New(mustEnv("S3_ENDPOINT"), &minio.Options{
		Creds:  credentials.NewStaticV4(mustEnv("S3_ACCESS_KEY"), mustEnv("S3_SECRET_KEY"), ""),
		Secure: envBool("S3_USE_SSL", true),
	})
	if err != nil {
		log.Fatalf("S3 client init failed: %v", err)
	}

	// Services
	locationService := services.NewLocationService(db)
	userService := services.NewUserService(mongoClient, db, redisClient, locationService, jwtSecret)
	nearbyService := services.NewNearbyService(locationService, userService)
	matchService := services.NewMatchService(services.NewLikeRepository(mongoClient, db), userService, enqueuer)

	nearbyCache := services.NewResponseCache(redisClient, "location", time.Duration(envInt("LOCATION_CACHE_TTL", 60))*time.Second)
	listCache := services.NewResponseCache(redisClient, "clients", time.Duration(envInt("LIST_CACHE_TTL", 60))*time.Second)
	matchLimiter := services.NewActionLimiter(
		redisClient,
		"match",
		envInt("MATCH_LIMIT", 30),
		time.Duration(envInt("MATCH_WINDOW_DAYS", 1))*24*time.Hour,
	)

	// Worker handlers
	mailer := tasks.NewMailer(
		mustEnv("SMTP_HOST"),
		envInt("SMTP_PORT", 587),
		mustEnv("SMTP_USER"),
		os.Getenv("SMTP_PASSWORD"),
	)
	uploader := tasks.NewAvatarUploader(s3Client, mustEnv("S3_BUCKET"), mustEnv("S3_DOMAIN_URL"), userService)

	worker := asynq.NewServer(redisOpt, asynq.Config{Concurrency: 5})
	if err := worker.Start(tasks.NewWorkerMux(mailer, uploader)); err != nil {
		log.Fatalf("Worker start failed: %v", err)
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, enqueuer)
	userHandler := handlers.NewUserHandler(nearbyService, userService, locationService, nearbyCache, listCache)
	matchHandler := handlers.NewMatchHandler(matchService, matchLimiter)

	r := mux.NewRouter()
	r.Use(middleware.CORSMiddleware([]string{"*"}))
	r.Use(middleware.ErrorMiddleware())
	r.Use(middleware.TimeoutMiddleware(time.Duration(envInt("REQUEST_TIMEOUT", 10)) * time.Second))

	// Public routes
	r.HandleFunc("/clients/create", authHandler.RegisterClient).Methods("POST", "OPTIONS")
	r.HandleFunc("/clients/list", userHandler.ListClients).Methods("GET", "OPTIONS")
	r.HandleFunc("/auth/login", authHandler.LoginUser).Methods("POST", "OPTIONS")

	// Authenticated routes
	authRouter := r.NewRoute().Subrouter()
	authRouter.Use(middleware.JWTMiddleware(jwtSecret))
	authRouter.HandleFunc("/user/nearby", userHandler.GetNearbyUsers).Methods("GET", "OPTIONS")
	authRouter.HandleFunc("/user/location", userHandler.UpdateLocation).Methods("POST", "OPTIONS")
	authRouter.HandleFunc("/clients/{id}/match", matchHandler.PostMatch).Methods("POST", "OPTIONS")

	server := &http.Server{
		Addr:    envOr("SERVER_ADDR", ":8080"),
		Handler: r,
	}

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	worker.Shutdown()
	asynqClient.Close()
	if err := redisClient.Close(); err != nil {
		log.Printf("Redis close: %v", err)
	}
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		log.Printf("MongoDB disconnect: %v", err)
	}
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s environment variable is not set", key)
	}
	return value
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("Invalid %s value: %v", key, err)
	}
	return value
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Fatalf("Invalid %s value: %v", key, err)
	}
	return value
}
