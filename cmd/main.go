package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/config"
	"github.com/fathima-sithara/realtime-chat/internal/cache"
	"github.com/fathima-sithara/realtime-chat/internal/delivery"
	"github.com/fathima-sithara/realtime-chat/internal/kafka"
	"github.com/fathima-sithara/realtime-chat/internal/metrics"
	"github.com/fathima-sithara/realtime-chat/internal/middleware"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/registry"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
	"github.com/fathima-sithara/realtime-chat/internal/routes"
	"github.com/fathima-sithara/realtime-chat/internal/storage"
	"github.com/fathima-sithara/realtime-chat/internal/ws"
)

// Server holds service dependencies
type Server struct {
	Cfg       *config.Config
	App       *fiber.App
	MongoRepo *repository.MongoRepository
	Redis     *cache.Client
	KafkaProd *kafka.Producer
	KafkaCons *kafka.Consumer
	Registry  *registry.Registry
	Hub       *ws.Hub
	Router    *ws.Router
	MsgChan   chan map[string]any

	Ctx    context.Context
	Cancel context.CancelFunc
}

// NewServer builds the server and all dependencies. Errors if a required
// dependency fails.
func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	mongoRepo, err := repository.NewMongoRepository(cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	redisClient, err := cache.NewRedis(cfg)
	if err != nil {
		// presence degrades gracefully without redis, the chat itself does not
		// depend on it
		log.Warn().Err(err).Msg("redis unavailable, running without cache")
		redisClient = nil
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopicIn, cfg.KafkaGroupID)

	verifier, err := middleware.NewVerifier(cfg.JWTAlg, cfg.JWTSecret, cfg.JWTPublicKeyPath)
	if err != nil {
		cancel()
		return nil, err
	}

	var s3Store *storage.S3Store
	if cfg.S3Bucket != "" {
		s3Store, err = storage.NewS3Store(ctx, cfg.S3Region, cfg.S3Bucket, false)
		if err != nil {
			log.Warn().Err(err).Msg("s3 unavailable, attachments disabled")
		}
	}

	reg := registry.New()
	hub := ws.NewHub()

	var objects delivery.ObjectStore
	if s3Store != nil {
		objects = s3Store
	}
	dlv := delivery.NewService(mongoRepo, reg, objects)

	router := ws.NewRouter(mongoRepo, reg, hub, dlv).
		WithProducer(producer, cfg.KafkaTopicOut).
		WithMessageRate(cfg.MsgRatePerSec)
	if redisClient != nil {
		router = router.WithCache(redisClient)
	}

	var lastSeen presence.LastSeenSource = mongoRepo
	if redisClient != nil {
		lastSeen = presence.NewCachedLastSeen(redisClient, mongoRepo)
	}
	tracker := presence.NewTracker(reg, lastSeen)

	metrics.Init()

	app := fiber.New(fiber.Config{
		ReadTimeout: 30 * time.Second,
	})
	app.Use(middleware.Recovery())
	app.Use(middleware.LoggerMiddleware())

	routes.Register(app, routes.Deps{
		Repo:     mongoRepo,
		Cache:    redisClient,
		Registry: reg,
		Hub:      hub,
		Router:   router,
		Delivery: dlv,
		Tracker:  tracker,
		S3:       s3Store,
		JWT:      verifier.Handler(),
		MsgRate:  cfg.MsgRatePerSec,
	})

	return &Server{
		Cfg:       cfg,
		App:       app,
		MongoRepo: mongoRepo,
		Redis:     redisClient,
		KafkaProd: producer,
		KafkaCons: consumer,
		Registry:  reg,
		Hub:       hub,
		Router:    router,
		MsgChan:   make(chan map[string]any, 100),
		Ctx:       ctx,
		Cancel:    cancel,
	}, nil
}

// Start launches background workers and the HTTP server.
func (s *Server) Start() {
	go s.KafkaCons.Run(s.Ctx, s.MsgChan)

	// pipeline events (media processing, moderation) fan out to everyone
	go func() {
		for msg := range s.MsgChan {
			s.Registry.DeliverToAll(ws.EvGlobalUpdate, msg)
		}
	}()

	port := s.Cfg.AppPort
	if port == "" {
		port = "8080"
	}
	go func() {
		log.Info().Msgf("starting realtime-chat on :%s", port)
		if err := s.App.Listen(":" + port); err != nil {
			log.Fatal().Err(err).Msg("fiber server exited unexpectedly")
		}
	}()
}

// Shutdown gracefully stops background workers, closes clients and shuts
// down the HTTP server.
func (s *Server) Shutdown() {
	log.Info().Msg("shutting down realtime-chat...")

	s.Cancel()
	time.Sleep(200 * time.Millisecond)

	if err := s.KafkaCons.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close kafka consumer")
	}
	if err := s.KafkaProd.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close kafka producer")
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis")
		}
	}
	if err := s.MongoRepo.Disconnect(context.Background()); err != nil {
		log.Error().Err(err).Msg("failed to disconnect mongo")
	}

	timeout := s.Cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.App.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown fiber app")
	}

	log.Info().Msg("realtime-chat stopped gracefully")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.AppEnv == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	server, err := NewServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize server")
	}
	server.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Msgf("received signal %s, starting graceful shutdown", sig)

	server.Shutdown()
}
