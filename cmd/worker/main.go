package main

import (
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"podshelf/internal/config"
	"podshelf/internal/db"
	"podshelf/internal/worker"
	"podshelf/internal/youtube"
	"podshelf/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file loaded")
	}
	cfg := config.Load()

	store, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer store.Close()

	for _, dir := range []string{cfg.AudioDir, cfg.ThumbnailDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create data dir %s: %v", dir, err)
		}
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer client.Close()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			// Downloads are heavy; keep concurrency low to stay gentle
			// with the external source.
			Concurrency:    2,
			RetryDelayFunc: worker.RetryDelay,
		},
	)

	resolver := youtube.NewResolver(cfg.MetadataTimeout)
	taskHandlers := worker.NewHandlers(store, resolver, client, cfg)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeDownloadEpisode, taskHandlers.HandleDownloadEpisode)
	mux.HandleFunc(tasks.TypeConvertUpload, taskHandlers.HandleConvertUpload)
	mux.HandleFunc(tasks.TypeRefreshSource, taskHandlers.HandleRefreshSource)
	mux.HandleFunc(tasks.TypeCheckAllSources, taskHandlers.HandleCheckAllSources)
	mux.HandleFunc(tasks.TypeReclaimStale, taskHandlers.HandleReclaimStale)

	log.Printf("Worker starting (commit: %s)", CommitSHA)
	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run worker: %v", err)
	}
}
