package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/config"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/database"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/handlers"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/middleware"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/repository"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/routes"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/services"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/validation"
)

func main() {
	log := logrus.New()

	// Load env
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found")
	}
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	configureLogger(log, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to MongoDB
	mongoClient, db, err := database.Connect(cfg.MongoURI, cfg.MongoDatabase, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer database.Disconnect(mongoClient)

	// Connect to Redis
	redisClient, err := database.ConnectRedis(cfg.RedisURI, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer database.DisconnectRedis(redisClient)

	store := repository.New(db, repository.Options{Transactions: cfg.MongoTransactions, Logger: log})
	if err := store.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Warn("⚠️  failed to ensure MongoDB indexes")
	} else {
		log.Info("✅ MongoDB indexes ensured")
	}

	identity, push, err := buildGateways(ctx, cfg, store, redisClient, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize gateways")
	}

	notifier := services.NewNotifier(push, store, log)

	var media services.MediaUploader
	if cfg.CloudinaryEnabled() {
		cld, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Cloudinary; media uploads disabled")
		} else {
			media = cld
			log.Info("✅ Cloudinary service initialized")
		}
	} else {
		log.Warn("Cloudinary credentials not found. Media uploads will not be available")
	}

	sweeper := services.NewSweeper(store, log)
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		log.WithError(err).Fatal("Failed to schedule location share sweep")
	}
	defer sweeper.Stop()

	hub := services.NewLocationHub(redisClient, log)
	hub.Start(ctx)

	h := handlers.New(handlers.Deps{
		Store:      store,
		Identity:   identity,
		Notifier:   notifier,
		Media:      media,
		Live:       hub,
		Sweeper:    sweeper,
		Reference:  validation.Default(),
		Logger:     log,
		Timeout:    cfg.RequestTimeout,
		SweepToken: cfg.SweepToken,
	})

	// Setup router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.HostCheck(cfg.AllowedHost))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.NewRateLimiter(middleware.NewRedisCounter(redisClient), cfg.RateLimitPerMinute, log).Handler)
	r.Use(middleware.LoginRateLimit)

	routes.SetupRoutes(r, h, middleware.Auth(identity))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":     cfg.Port,
			"env":      cfg.Environment,
			"identity": cfg.IdentityProvider,
			"push":     cfg.PushProvider,
		}).Info("🚀 Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	notifier.Wait()
}

func configureLogger(log *logrus.Logger, cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}

// buildGateways selects the identity and push implementations. The Firebase
// app is only created when one of them needs it.
func buildGateways(ctx context.Context, cfg *config.Config, store *repository.Mongo, rdb *redis.Client, log logrus.FieldLogger) (services.IdentityGateway, services.PushGateway, error) {
	var app *firebase.App
	if cfg.NeedsFirebase() {
		var opts []option.ClientOption
		if cfg.FirebaseCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
		}
		var err error
		app, err = firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("project", cfg.FirebaseProjectID).Info("✅ Firebase app initialized")
	}

	var identity services.IdentityGateway
	switch cfg.IdentityProvider {
	case config.IdentityFirebase:
		authClient, err := app.Auth(ctx)
		if err != nil {
			return nil, nil, err
		}
		identity = services.NewFirebaseIdentity(authClient, cfg.FirebaseWebAPIKey)
	default:
		identity = services.NewLocalIdentity(store, services.LocalIdentityConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.TokenIssuer(),
			Audience: cfg.FirebaseProjectID,
			TTL:      cfg.TokenTTL,
		})
	}

	var push services.PushGateway
	switch cfg.PushProvider {
	case config.PushFCM:
		msgClient, err := app.Messaging(ctx)
		if err != nil {
			return nil, nil, err
		}
		push = services.NewFCMGateway(msgClient)
	default:
		push = services.NewRedisPushGateway(rdb)
	}
	return identity, push, nil
}
