package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"podshelf/internal/db"
	"podshelf/internal/models"
	"podshelf/pkg/tasks"
)

// HandleCheckAllSources is the periodic sweep: every enabled source that is
// due gets its own refresh job, so one slow external playlist can never
// stall the sweep.
func (h *Handlers) HandleCheckAllSources(ctx context.Context, t *asynq.Task) error {
	sources, err := h.store.ListEnabledSources()
	if err != nil {
		return errors.Wrap(err, "list enabled sources")
	}

	now := time.Now().UTC()
	queued := 0
	for _, source := range sources {
		if !source.DueAt(now, h.cfg.RefreshInterval) {
			continue
		}
		task, err := tasks.NewRefreshSourceTask(source.ID)
		if err != nil {
			log.WithField("source_id", source.ID).Errorf("failed to create refresh task: %v", err)
			continue
		}
		if _, err := h.asynqClient.Enqueue(task); err != nil {
			log.WithField("source_id", source.ID).Errorf("failed to enqueue refresh task: %v", err)
			continue
		}
		queued++
	}

	log.WithField("queued", queued).Info("source refresh sweep complete")
	return nil
}

// HandleRefreshSource rescans one tracked playlist, creates pending
// episodes for unseen items (bounded per refresh) and enqueues their
// acquisition strictly after the creating transaction has committed.
func (h *Handlers) HandleRefreshSource(ctx context.Context, t *asynq.Task) error {
	var p tasks.RefreshSourcePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	source, err := h.store.GetCollectionSource(p.SourceID)
	if err == sql.ErrNoRows {
		log.WithField("source_id", p.SourceID).Info("source gone before refresh, skipping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load source")
	}
	if !source.Enabled {
		log.WithField("source_id", source.ID).Info("source disabled, skipping refresh")
		return nil
	}
	if _, err := h.store.GetCollection(source.CollectionID); err == sql.ErrNoRows {
		log.WithField("source_id", source.ID).Info("owning collection gone, skipping refresh")
		return nil
	} else if err != nil {
		return errors.Wrap(err, "load collection")
	}

	// Enumeration failure retries this refresh job with backoff up to its
	// small ceiling; last_refreshed_at stays unchanged so the source comes
	// back on its normal schedule rather than looking falsely fresh.
	itemIDs, err := h.resolver.PlaylistItems(ctx, source.SourceURL)
	if err != nil {
		return errors.Wrap(err, "enumerate playlist")
	}

	existing, err := h.store.ExistingSourceIDs(source.CollectionID)
	if err != nil {
		return errors.Wrap(err, "load existing source ids")
	}

	created, err := h.createNewEpisodes(source, itemIDs, existing)
	if err != nil {
		return err
	}

	// Jobs reference committed rows only; the transaction above is closed
	// before the first enqueue.
	for _, episode := range created {
		task, err := tasks.NewDownloadEpisodeTask(episode.ID)
		if err != nil {
			log.WithField("episode_id", episode.ID).Errorf("failed to create download task: %v", err)
			continue
		}
		if _, err := h.asynqClient.Enqueue(task); err != nil {
			log.WithField("episode_id", episode.ID).Errorf("failed to enqueue download task: %v", err)
		}
	}

	log.WithFields(log.Fields{"source_id": source.ID, "added": len(created)}).
		Info("source refreshed")
	return nil
}

// createNewEpisodes commits the batch of unseen items (capped per refresh)
// and the advanced last_refreshed_at in one transaction. Items beyond the
// cap are simply picked up by the next refresh.
func (h *Handlers) createNewEpisodes(source models.CollectionSource, itemIDs []string, existing map[string]struct{}) ([]models.Episode, error) {
	tx, err := h.store.DB.Beginx()
	if err != nil {
		return nil, errors.Wrap(err, "begin refresh transaction")
	}
	defer tx.Rollback()

	var created []models.Episode
	for _, itemID := range itemIDs {
		if _, ok := existing[itemID]; ok {
			continue
		}
		if len(created) >= h.cfg.MaxNewEpisodesPerRefresh {
			log.WithFields(log.Fields{"source_id": source.ID, "cap": h.cfg.MaxNewEpisodesPerRefresh}).
				Warn("hit max new episodes per refresh")
			break
		}
		id := itemID
		episode, err := h.store.CreateEpisodeTx(tx, db.NewEpisode{
			CollectionID: source.CollectionID,
			SourceID:     &id,
			SourceKind:   models.SourceKindExternal,
			Title:        fmt.Sprintf("Loading... (%s)", itemID),
		})
		if err != nil {
			return nil, errors.Wrap(err, "create episode")
		}
		created = append(created, episode)
	}

	if _, err := tx.Exec(
		"UPDATE collection_sources SET last_refreshed_at = $1 WHERE id = $2",
		time.Now().UTC(), source.ID); err != nil {
		return nil, errors.Wrap(err, "touch source")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit refresh transaction")
	}
	return created, nil
}

// HandleReclaimStale reverts episodes stuck in acquiring past the staleness
// cutoff back to pending and re-enqueues them. This covers a worker that
// died mid-job without the queue redelivering.
func (h *Handlers) HandleReclaimStale(ctx context.Context, t *asynq.Task) error {
	cutoff := time.Now().UTC().Add(-h.cfg.StaleAcquiringAfter)
	ids, err := h.store.ReclaimStaleAcquiring(cutoff)
	if err != nil {
		return errors.Wrap(err, "reclaim stale acquiring")
	}

	for _, id := range ids {
		task, err := tasks.NewDownloadEpisodeTask(id)
		if err != nil {
			log.WithField("episode_id", id).Errorf("failed to create download task: %v", err)
			continue
		}
		if _, err := h.asynqClient.Enqueue(task); err != nil {
			log.WithField("episode_id", id).Errorf("failed to re-enqueue reclaimed episode: %v", err)
		}
	}

	if len(ids) > 0 {
		log.WithField("reclaimed", len(ids)).Warn("reclaimed stale acquiring episodes")
	}
	return nil
}
