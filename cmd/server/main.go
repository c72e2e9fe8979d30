package main

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"podshelf/internal/config"
	"podshelf/internal/db"
	"podshelf/internal/handlers"
	"podshelf/internal/middleware"
	"podshelf/internal/youtube"
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

	for _, dir := range []string{cfg.AudioDir, cfg.ArtworkDir, cfg.ThumbnailDir, cfg.UploadTmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create data dir %s: %v", dir, err)
		}
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer client.Close()

	auth := middleware.NewAuth(cfg.JWTSecret, cfg.AppPassword, cfg.TokenTTL)
	resolver := youtube.NewResolver(cfg.MetadataTimeout)

	router := mux.NewRouter()
	router.Use(middleware.NewRateLimiter(rate.Limit(10), 30).Middleware)
	handlers.New(store, client, resolver, auth, cfg).Register(router)

	log.Printf("Server starting on %s (commit: %s)", cfg.ListenAddr, CommitSHA)
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Fatal(err)
	}
}
