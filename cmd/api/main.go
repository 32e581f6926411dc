package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/chachabrian/evvalet-backend/internal/config"
	"github.com/chachabrian/evvalet-backend/internal/database"
	"github.com/chachabrian/evvalet-backend/internal/handlers"
	"github.com/chachabrian/evvalet-backend/internal/logger"
	"github.com/chachabrian/evvalet-backend/internal/marketplace"
	"github.com/chachabrian/evvalet-backend/internal/services"
	"github.com/chachabrian/evvalet-backend/internal/storage"
)

type persistence interface {
	storage.Store
	storage.DeviceTokenStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store persistence
	switch cfg.Storage {
	case "memory":
		log.Warn("Using in-memory storage, data is lost on restart")
		store = storage.NewMemoryStore()
	default:
		db, err := database.InitDB(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		if err := database.RunMigrations(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		store = storage.NewGormStore(db)
	}

	// Broadcast to UIs: Redis when configured so every instance sees every event.
	var bus services.Broadcaster = services.NewLocalBroadcaster(log)
	var locations *services.RedisLocationCache
	if cfg.RedisURL != "" {
		rdb, err := services.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer rdb.Close()
		bus = services.NewRedisBroadcaster(rdb, log)
		locations = services.NewRedisLocationCache(rdb)
	} else {
		log.Warn("REDIS_URL not set. Events reach websocket clients of this instance only.")
	}

	var sinks []services.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kp := services.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		sinks = append(sinks, services.Sink{Name: "kafka", Publisher: kp})
	}
	if cfg.RabbitMQURL != "" {
		ap, err := services.NewAMQPPublisher(ctx, cfg.RabbitMQURL, cfg.RabbitMQExchange, log)
		if err != nil {
			log.Fatalf("Failed to initialize RabbitMQ: %v", err)
		}
		defer ap.Close()
		sinks = append(sinks, services.Sink{Name: "rabbitmq", Publisher: ap})
	}
	if cfg.FirebaseServiceAccountPath != "" {
		client, err := services.NewMessagingClient(ctx, cfg.FirebaseServiceAccountPath)
		if err != nil {
			log.Warnf("Firebase initialization warning: %v", err)
		} else {
			sinks = append(sinks, services.Sink{Name: "push", Publisher: services.NewPushNotifier(client, store, log)})
		}
	} else {
		log.Warn("FIREBASE_SERVICE_ACCOUNT_PATH not set. Push notifications will be disabled.")
	}
	switch {
	case cfg.S3Enabled():
		archiver, err := services.NewS3RideArchiver(services.S3Config{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Bucket:          cfg.AWSS3Bucket,
		})
		if err != nil {
			log.Fatalf("Failed to initialize ride archive: %v", err)
		}
		sinks = append(sinks, services.Sink{Name: "archive", Publisher: archiver})
	case cfg.ArchiveDir != "":
		archiver, err := services.NewLocalRideArchiver(cfg.ArchiveDir)
		if err != nil {
			log.Fatalf("Failed to initialize ride archive: %v", err)
		}
		sinks = append(sinks, services.Sink{Name: "archive", Publisher: archiver})
	}

	external := services.NewAsyncPublisher(services.NewFanout(log, sinks...), 1024, log)
	external.Start()

	publisher := services.NewFanout(log,
		services.Sink{Name: "broadcast", Publisher: bus},
		services.Sink{Name: "external", Publisher: external},
	)

	opts := []marketplace.Option{
		marketplace.WithLogger(log),
		marketplace.WithAverageSpeed(cfg.AverageSpeedKmh),
		marketplace.WithClientMayCancel(cfg.RideClientMayCancel),
	}
	if locations != nil {
		opts = append(opts, marketplace.WithLocationCache(locations))
	}
	svc := marketplace.NewService(store, publisher, opts...)

	hub := services.NewHub(bus, log)
	go hub.Run(ctx)

	router := handlers.NewRouter(handlers.Deps{
		Service:   svc,
		Tokens:    store,
		Hub:       hub,
		Locations: locations,
		JWTSecret: cfg.JWTSecret,
		Log:       log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	// Sinks are closed by the deferred calls above, after the queue drains.
	if err := external.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("Event sinks did not drain")
	}
}
