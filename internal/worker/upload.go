package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"podshelf/internal/media"
	"podshelf/internal/safety"
	"podshelf/pkg/tasks"
)

// HandleConvertUpload converts a staged upload to the canonical artifact
// format. Large uploads are routed here so the request path never blocks on
// transcoding; small ones are converted inline by the API layer.
func (h *Handlers) HandleConvertUpload(ctx context.Context, t *asynq.Task) error {
	var p tasks.ConvertUploadPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	episode, err := h.store.GetEpisode(p.EpisodeID)
	if err == sql.ErrNoRows {
		log.WithField("episode_id", p.EpisodeID).Info("episode gone before conversion, skipping")
		media.RemoveIfExists(p.StagedPath)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load episode")
	}

	// The staged path rides in the task payload, so it is re-validated here
	// rather than trusted.
	stagedPath, err := safety.ValidateLocalPath(p.StagedPath, h.cfg.UploadTmpDir)
	if err != nil {
		h.failEpisode(episode.ID, "Uploaded file could not be processed", err)
		return fmt.Errorf("staged path rejected: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.store.MarkAcquiring(episode.ID); err != nil {
		return errors.Wrap(err, "mark acquiring")
	}

	convertCtx, cancel := context.WithTimeout(ctx, h.cfg.DownloadTimeout)
	defer cancel()

	outputPath := filepath.Join(h.cfg.AudioDir, episode.ID+".mp3")
	if err := convertToMP3(convertCtx, stagedPath, outputPath); err != nil {
		h.failEpisode(episode.ID, "Audio conversion failed", err)
		h.cleanupStagedOnFinalAttempt(ctx, stagedPath)
		return errors.Wrap(err, "convert upload")
	}

	meta, err := probeMedia(convertCtx, outputPath)
	if err != nil {
		log.WithField("episode_id", episode.ID).Warnf("probe converted file: %v", err)
	}

	fileInfo, err := os.Stat(outputPath)
	if err != nil {
		h.failEpisode(episode.ID, "Audio conversion failed", err)
		h.cleanupStagedOnFinalAttempt(ctx, stagedPath)
		return errors.Wrap(err, "stat converted file")
	}

	if err := h.store.MarkReady(episode.ID, outputPath, fileInfo.Size(), meta.DurationSeconds); err != nil {
		return errors.Wrap(err, "mark ready")
	}

	media.RemoveIfExists(stagedPath)
	log.WithFields(log.Fields{"episode_id": episode.ID, "bytes": fileInfo.Size()}).
		Info("uploaded episode converted")
	return nil
}

// cleanupStagedOnFinalAttempt deletes the staged temp file once no further
// redelivery will happen. Earlier attempts keep it so a retry has input to
// work with.
func (h *Handlers) cleanupStagedOnFinalAttempt(ctx context.Context, stagedPath string) {
	retried, _ := asynq.GetRetryCount(ctx)
	max, _ := asynq.GetMaxRetry(ctx)
	if retried >= max {
		media.RemoveIfExists(stagedPath)
	}
}
