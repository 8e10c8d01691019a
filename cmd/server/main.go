package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/jpvelasco/placedrop/internal/api"
	"github.com/jpvelasco/placedrop/internal/blobstore"
	"github.com/jpvelasco/placedrop/internal/config"
	"github.com/jpvelasco/placedrop/internal/database"
	"github.com/jpvelasco/placedrop/internal/logger"
	"github.com/jpvelasco/placedrop/internal/places"
	"github.com/jpvelasco/placedrop/internal/route"
	"github.com/jpvelasco/placedrop/internal/uploader"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg)

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	repo := places.NewPGStore(pool, log)
	go repo.Listen(ctx)

	store, err := blobstore.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage")
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure bucket")
	}
	up := uploader.New(store, log)

	dirs := route.NewClient(cfg.DirectionsEndpoint, cfg.DirectionsAPIKey, &http.Client{Timeout: cfg.DirectionsTimeout}, log)

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	srv := api.New(cfg, repo, up, dirs, queueClient, log)
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
