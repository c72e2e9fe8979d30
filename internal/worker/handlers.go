package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"podshelf/internal/artwork"
	"podshelf/internal/config"
	"podshelf/internal/db"
	"podshelf/internal/media"
	"podshelf/internal/models"
	"podshelf/internal/safety"
	"podshelf/internal/youtube"
	"podshelf/pkg/tasks"
)

// Swappable for tests, mirroring the exec seams in internal/media.
var (
	downloadAudio = media.DownloadAudio
	convertToMP3  = media.ConvertToMP3
	probeMedia    = media.Probe
)

// MetadataResolver is the external-source adapter the job runner depends
// on. Implemented by *youtube.Resolver, mocked in tests.
type MetadataResolver interface {
	VideoInfo(ctx context.Context, idOrURL string) (youtube.VideoInfo, error)
	PlaylistItems(ctx context.Context, url string) ([]string, error)
}

type Handlers struct {
	store       *db.Store
	resolver    MetadataResolver
	asynqClient tasks.TaskEnqueuer
	cfg         config.Config
	httpClient  *http.Client
}

func NewHandlers(store *db.Store, resolver MetadataResolver, client tasks.TaskEnqueuer, cfg config.Config) *Handlers {
	return &Handlers{
		store:       store,
		resolver:    resolver,
		asynqClient: client,
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.ThumbnailTimeout},
	}
}

// HandleDownloadEpisode drives one external episode through acquisition:
// resolve metadata, cache the thumbnail, download and transcode the audio,
// persist the artifact. Returning an error hands the job back to the queue
// for redelivery with backoff; the episode row is left failed in between so
// observers see accurate status.
func (h *Handlers) HandleDownloadEpisode(ctx context.Context, t *asynq.Task) error {
	var p tasks.DownloadEpisodePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	episode, err := h.store.GetEpisode(p.EpisodeID)
	if err == sql.ErrNoRows {
		// The enqueue raced with a delete; nothing to do.
		log.WithField("episode_id", p.EpisodeID).Info("episode gone before acquisition, skipping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load episode")
	}

	if episode.SourceKind != models.SourceKindExternal || episode.SourceID == nil {
		h.failEpisode(episode.ID, "This episode has no downloadable source",
			errors.New("download task for non-external episode"))
		return fmt.Errorf("episode %s is not downloadable: %w", episode.ID, asynq.SkipRetry)
	}

	// Persisted before any external call so a crash mid-job leaves a
	// visibly stuck row for the staleness sweep.
	if err := h.store.MarkAcquiring(episode.ID); err != nil {
		return errors.Wrap(err, "mark acquiring")
	}

	log.WithFields(log.Fields{"episode_id": episode.ID, "source_id": *episode.SourceID}).
		Info("acquiring episode")

	info, err := h.resolver.VideoInfo(ctx, *episode.SourceID)
	if err != nil {
		h.failEpisode(episode.ID, "Could not fetch item metadata from the source", err)
		return errors.Wrap(err, "resolve metadata")
	}

	mergeResolvedMetadata(&episode, info)
	if err := h.store.ApplyResolvedMetadata(episode); err != nil {
		return errors.Wrap(err, "apply resolved metadata")
	}

	h.cacheThumbnail(ctx, episode.ID, info.ThumbnailURL)

	downloadCtx, cancel := context.WithTimeout(ctx, h.cfg.DownloadTimeout)
	defer cancel()
	audioPath, err := downloadAudio(downloadCtx, *episode.SourceID, episode.ID, h.cfg.AudioDir)
	if err != nil {
		h.failEpisode(episode.ID, "Audio download failed", err)
		return errors.Wrap(err, "download audio")
	}

	// Actual bytes on disk, never a caller-supplied value.
	fileInfo, err := os.Stat(audioPath)
	if err != nil {
		h.failEpisode(episode.ID, "Audio download failed", err)
		return errors.Wrap(err, "stat audio file")
	}

	if err := h.store.MarkReady(episode.ID, audioPath, fileInfo.Size(), info.Duration); err != nil {
		return errors.Wrap(err, "mark ready")
	}

	log.WithFields(log.Fields{"episode_id": episode.ID, "bytes": fileInfo.Size()}).
		Info("episode ready")
	return nil
}

// mergeResolvedMetadata applies the customization-preserving merge: a
// display field is overwritten only while the user has not edited it away
// from its original_* counterpart; the original_* side is always refreshed
// so future edits compare against current truth.
func mergeResolvedMetadata(e *models.Episode, info youtube.VideoInfo) {
	if !e.TitleEdited() {
		e.Title = info.Title
	}
	e.OriginalTitle = &info.Title

	if !e.DescriptionEdited() {
		e.Description = &info.Description
	}
	e.OriginalDescription = &info.Description

	if info.PublishedAt != nil {
		if !e.PublishedAtEdited() {
			e.PublishedAt = info.PublishedAt
		}
		e.OriginalPublishedAt = info.PublishedAt
	}

	if info.ThumbnailURL != "" {
		e.ThumbnailURL = &info.ThumbnailURL
	}
	if info.Duration > 0 {
		d := info.Duration
		e.DurationSeconds = &d
	}
}

// cacheThumbnail fetches and stores the episode thumbnail locally. Absence
// degrades gracefully: any failure is logged and swallowed.
func (h *Handlers) cacheThumbnail(ctx context.Context, episodeID, thumbnailURL string) {
	if thumbnailURL == "" {
		return
	}
	if err := safety.ValidateFetchURL(thumbnailURL, h.cfg.AllowedThumbnailHosts); err != nil {
		log.WithFields(log.Fields{"episode_id": episodeID, "url": thumbnailURL}).
			Warnf("thumbnail url rejected: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		log.WithField("episode_id", episodeID).Warnf("thumbnail request: %v", err)
		return
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		log.WithField("episode_id", episodeID).Warnf("thumbnail fetch: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.WithFields(log.Fields{"episode_id": episodeID, "status": resp.StatusCode}).
			Warn("thumbnail fetch: unexpected status")
		return
	}

	thumbnailPath := filepath.Join(h.cfg.ThumbnailDir, episodeID+".jpg")
	if err := artwork.Process(resp.Body, thumbnailPath); err != nil {
		log.WithField("episode_id", episodeID).Warnf("thumbnail processing: %v", err)
		return
	}
	if err := h.store.SetThumbnailPath(episodeID, thumbnailPath); err != nil {
		log.WithField("episode_id", episodeID).Warnf("persist thumbnail path: %v", err)
	}
}

// failEpisode persists a sanitized, user-safe message; the raw cause goes to
// the operational logs only.
func (h *Handlers) failEpisode(episodeID, userMessage string, cause error) {
	log.WithField("episode_id", episodeID).Errorf("acquisition failed: %v", cause)
	if err := h.store.MarkFailed(episodeID, userMessage); err != nil {
		log.WithField("episode_id", episodeID).Errorf("failed to persist failure: %v", err)
	}
}

// RetryDelay computes the redelivery backoff for a failed job:
// baseDelay * 2^attempt, capped. Installed as the asynq server's
// RetryDelayFunc.
func RetryDelay(n int, _ error, task *asynq.Task) time.Duration {
	const (
		baseDelay = 1 * time.Minute
		maxDelay  = 6 * time.Hour
	)
	delay := baseDelay
	for i := 0; i < n; i++ {
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
			break
		}
	}
	log.WithFields(log.Fields{"task": task.Type(), "attempt": n + 1, "delay": delay}).
		Info("task failed, scheduling retry")
	return delay
}
