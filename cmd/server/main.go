package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"ridewatch/internal/app"
	"ridewatch/internal/config"
	"ridewatch/internal/dispatch"
	"ridewatch/internal/handler"
	"ridewatch/internal/push"
	"ridewatch/internal/rabbitmq"
	internalRedis "ridewatch/internal/redis"
	"ridewatch/internal/repository/postgres"
	"ridewatch/internal/service"
	"ridewatch/internal/ws"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	if cfg.Upstream.BaseURL == "" {
		log.Fatal("MD_API_BASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	// Optional lifecycle event stream.
	var events *rabbitmq.Publisher
	if cfg.AMQP.URL != "" {
		events, err = rabbitmq.NewPublisher(cfg.AMQP)
		if err != nil {
			log.Printf("ride events disabled: %v", err)
		} else {
			defer events.Close()
		}
	}

	// Optional native push mirror.
	var topic service.TopicSender
	if cfg.Push.FirebaseCredentialsFile != "" {
		fcm, err := push.NewFCMSender(ctx, cfg.Push)
		if err != nil {
			log.Printf("firebase push disabled: %v", err)
		} else {
			topic = fcm
		}
	}

	webPush, err := push.NewWebPushSender(cfg.Push)
	if err != nil {
		log.Fatalf("failed to initialize web push: %v", err)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := ws.NewHub()
	go hub.Run(hubCtx)

	// Wire dependencies.
	deps := wireDeps{
		db:          db,
		redisClient: redisClient,
		nrApp:       nrApp,
		hub:         hub,
		webPush:     webPush,
		topic:       topic,
	}
	if events != nil {
		deps.events = events
	}
	server, tracker := wireServer(deps, cfg)

	restoreCtx, restoreCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := tracker.Restore(restoreCtx); err != nil {
		log.Printf("failed to restore tracked rides: %v", err)
	}
	restoreCancel()

	// Start server in goroutine.
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	tracker.Close()
	stopHub()
	<-hub.Done()

	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	log.Println("Server exited")
}

type wireDeps struct {
	db          *sql.DB
	redisClient *redis.Client
	nrApp       *newrelic.Application
	hub         *ws.Hub
	webPush     *push.WebPushSender
	topic       service.TopicSender
	events      service.EventPublisher
}

// wireServer wires all dependencies and returns the HTTP server and the
// tracker driving it.
func wireServer(deps wireDeps, cfg *config.Config) (*http.Server, *service.Tracker) {
	// Initialize Redis stores.
	cacheStore := internalRedis.NewCacheStore(deps.redisClient)
	subscriptionStore := internalRedis.NewSubscriptionStore(deps.redisClient)

	// Initialize repositories.
	rideRepo := postgres.NewRideRepository(deps.db)

	// Initialize services.
	api := dispatch.NewClient(cfg.Upstream, deps.nrApp)
	pushService := service.NewPushService(subscriptionStore, deps.webPush, deps.topic, deps.webPush.PublicKey())
	notificationService := service.NewNotificationService(deps.hub, pushService, deps.events)
	tracker := service.NewTracker(service.TrackerDeps{
		API:         api,
		Notifier:    notificationService,
		Rides:       rideRepo,
		Renderer:    deps.hub,
		Records:     cacheStore,
		NewRelicApp: deps.nrApp,
		Options: service.TrackerOptions{
			PollInterval:  cfg.Tracker.PollInterval,
			HistoryLimit:  cfg.Tracker.HistoryLimit,
			NotifyTimeout: cfg.Tracker.NotifyTimeout,
		},
	})

	// Initialize handlers.
	rideHandler := handler.NewRideHandler(tracker, api)
	pushHandler := handler.NewPushHandler(pushService)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		RideHandler: rideHandler,
		PushHandler: pushHandler,
		LiveUpdates: http.HandlerFunc(deps.hub.ServeWS),
		RedisClient: deps.redisClient,
		NewRelicApp: deps.nrApp,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, tracker
}
