package main

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"podshelf/internal/config"
	"podshelf/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file loaded")
	}
	cfg := config.Load()

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		&asynq.SchedulerOpts{},
	)

	checkTask, err := tasks.NewCheckAllSourcesTask()
	if err != nil {
		log.Fatalf("could not create due-check task: %v", err)
	}
	every := fmt.Sprintf("@every %s", cfg.RefreshCheckInterval)
	if _, err := scheduler.Register(every, checkTask); err != nil {
		log.Fatalf("could not register due-check task: %v", err)
	}

	reclaimTask, err := tasks.NewReclaimStaleTask()
	if err != nil {
		log.Fatalf("could not create reclaim task: %v", err)
	}
	if _, err := scheduler.Register(fmt.Sprintf("@every %s", cfg.StaleAcquiringAfter), reclaimTask); err != nil {
		log.Fatalf("could not register reclaim task: %v", err)
	}

	log.Printf("Scheduler starting (commit: %s)", CommitSHA)
	if err := scheduler.Run(); err != nil {
		log.Fatalf("could not run scheduler: %v", err)
	}
}
