package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"podshelf/internal/db"
	"podshelf/internal/media"
	"podshelf/internal/models"
	"podshelf/internal/youtube"
	"podshelf/pkg/tasks"
)

type addItemsRequest struct {
	URLs []string `json:"urls"`
}

// AddItems accepts item and playlist URLs. Playlists become tracked sources
// and are expanded immediately; single items are validated by id parse.
// Episodes are committed before any acquisition job is enqueued.
func (h *Handlers) AddItems(w http.ResponseWriter, r *http.Request) {
	collectionID := mux.Vars(r)["id"]

	if _, err := h.store.GetCollection(collectionID); err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Collection not found")
		return
	} else if err != nil {
		log.Errorf("get collection: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var body addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "At least one URL is required")
		return
	}

	itemIDs, err := h.expandURLs(r, collectionID, body.URLs)
	if err != nil {
		log.Errorf("expand urls: %v", err)
		writeError(w, http.StatusBadGateway, "Could not read the external source")
		return
	}
	if len(itemIDs) == 0 {
		writeError(w, http.StatusBadRequest, "No valid item URLs found")
		return
	}

	existing, err := h.store.ExistingSourceIDs(collectionID)
	if err != nil {
		log.Errorf("existing source ids: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var created []models.Episode
	for _, itemID := range itemIDs {
		if _, ok := existing[itemID]; ok {
			continue
		}
		id := itemID
		episode, err := h.store.CreateEpisode(db.NewEpisode{
			CollectionID: collectionID,
			SourceID:     &id,
			SourceKind:   models.SourceKindExternal,
			Title:        fmt.Sprintf("Loading... (%s)", itemID),
		})
		if err != nil {
			log.Errorf("create episode: %v", err)
			continue
		}
		created = append(created, episode)
	}

	// Rows are durably committed above; only now do jobs reference them.
	for _, episode := range created {
		h.enqueueDownload(episode.ID)
	}

	writeJSON(w, http.StatusOK, struct {
		AddedCount int              `json:"added_count"`
		Episodes   []models.Episode `json:"episodes"`
	}{len(created), created})
}

// expandURLs turns the submitted URLs into a deduplicated list of item ids,
// registering playlist URLs as tracked sources along the way.
func (h *Handlers) expandURLs(r *http.Request, collectionID string, urls []string) ([]string, error) {
	var itemIDs []string
	seen := map[string]struct{}{}

	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if youtube.IsPlaylistURL(raw) {
			playlistID := youtube.ExtractPlaylistID(raw)
			if playlistID == "" {
				continue
			}
			info, err := h.resolver.PlaylistInfo(r.Context(), raw)
			if err != nil {
				return nil, err
			}
			if _, err := h.store.UpsertCollectionSource(collectionID, raw, playlistID, &info.Title); err != nil {
				return nil, err
			}
			ids, err := h.resolver.PlaylistItems(r.Context(), raw)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					itemIDs = append(itemIDs, id)
				}
			}
			continue
		}

		if id := youtube.ExtractVideoID(raw); id != "" {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				itemIDs = append(itemIDs, id)
			}
		}
	}
	return itemIDs, nil
}

func (h *Handlers) enqueueDownload(episodeID string) {
	task, err := tasks.NewDownloadEpisodeTask(episodeID)
	if err != nil {
		log.WithField("episode_id", episodeID).Errorf("create download task: %v", err)
		return
	}
	if _, err := h.asynqClient.Enqueue(task); err != nil {
		log.WithField("episode_id", episodeID).Errorf("enqueue download task: %v", err)
	}
}

type updateEpisodeRequest struct {
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	PublishedAt      *time.Time `json:"published_at"`
	RevertToOriginal bool       `json:"revert_to_original"`
}

func (h *Handlers) UpdateEpisode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	episode, err := h.store.GetEpisodeInCollection(vars["cid"], vars["id"])
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Episode not found")
		return
	}
	if err != nil {
		log.Errorf("get episode: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var body updateEpisodeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if body.RevertToOriginal {
		if err := h.store.RevertToOriginal(episode.ID); err != nil {
			log.Errorf("revert episode: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	} else {
		title := episode.Title
		if body.Title != nil && *body.Title != "" {
			title = *body.Title
		}
		description := episode.Description
		if body.Description != nil {
			description = body.Description
		}
		publishedAt := episode.PublishedAt
		if body.PublishedAt != nil {
			publishedAt = body.PublishedAt
		}
		if err := h.store.UpdateEditableFields(episode.ID, title, description, publishedAt); err != nil {
			log.Errorf("update episode: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	episode, err = h.store.GetEpisode(episode.ID)
	if err != nil {
		log.Errorf("reload episode: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, episode)
}

func (h *Handlers) DeleteEpisode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	paths, err := h.store.DeleteEpisode(vars["cid"], vars["id"])
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Episode not found")
		return
	}
	if err != nil {
		log.Errorf("delete episode: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	for _, path := range paths {
		media.RemoveIfExists(path)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// RetryEpisode requeues a failed episode. Requeuing is only permitted from
// failed so a new attempt can never race a live one on the same artifact.
func (h *Handlers) RetryEpisode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	episode, err := h.store.GetEpisodeInCollection(vars["cid"], vars["id"])
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Episode not found")
		return
	}
	if err != nil {
		log.Errorf("get episode: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if episode.SourceKind != models.SourceKindExternal {
		writeError(w, http.StatusBadRequest, "Uploaded episodes cannot be re-downloaded")
		return
	}

	requeued, err := h.store.RequeueFailed(episode.ID)
	if err != nil {
		log.Errorf("requeue episode: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !requeued {
		writeError(w, http.StatusConflict, "Episode is not in a failed state")
		return
	}

	h.enqueueDownload(episode.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"queued": true})
}

func (h *Handlers) GetStorageInfo(w http.ResponseWriter, r *http.Request) {
	totals, err := h.store.Storage()
	if err != nil {
		log.Errorf("storage totals: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		EpisodeCount int    `json:"episode_count"`
		TotalBytes   int64  `json:"total_bytes"`
		TotalHuman   string `json:"total_human"`
	}{totals.EpisodeCount, totals.TotalBytes, humanize.Bytes(uint64(totals.TotalBytes))})
}
