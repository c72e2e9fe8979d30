package handlers

import (
	"database/sql"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"podshelf/internal/db"
	"podshelf/internal/feed"
	"podshelf/internal/safety"
)

func (h *Handlers) GetRSSFeed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	collection, err := h.store.GetCollection(id)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Collection not found")
		return
	}
	if err != nil {
		log.Errorf("get collection: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	episodes, err := h.store.ListReadyEpisodesByCollection(id)
	if err != nil {
		log.Errorf("list ready episodes: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	rss, err := feed.GenerateRSS(collection, episodes, h.cfg.BaseURL)
	if err != nil {
		log.Errorf("generate rss: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write([]byte(rss))
}

// ServeAudio streams a ready artifact. The stored path is re-validated
// against the audio base directory and re-checked on disk at serve time;
// stored paths may be stale or tampered with externally.
func (h *Handlers) ServeAudio(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	episode, err := h.store.GetEpisode(id)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Episode not found")
		return
	}
	if err != nil {
		log.Errorf("get episode: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if episode.Status != db.StatusReady || episode.AudioPath == nil {
		writeError(w, http.StatusNotFound, "Audio not ready")
		return
	}

	h.serveGuardedFile(w, r, *episode.AudioPath, h.cfg.AudioDir, "audio/mpeg")
}

func (h *Handlers) ServeThumbnail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	episode, err := h.store.GetEpisode(id)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Episode not found")
		return
	}
	if err != nil {
		log.Errorf("get episode: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if episode.ThumbnailPath == nil {
		writeError(w, http.StatusNotFound, "Thumbnail not found")
		return
	}

	h.serveGuardedFile(w, r, *episode.ThumbnailPath, h.cfg.ThumbnailDir, "image/jpeg")
}

func (h *Handlers) ServeArtwork(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	collection, err := h.store.GetCollection(id)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Collection not found")
		return
	}
	if err != nil {
		log.Errorf("get collection: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if collection.ArtworkPath == nil {
		writeError(w, http.StatusNotFound, "Artwork not found")
		return
	}

	h.serveGuardedFile(w, r, *collection.ArtworkPath, h.cfg.ArtworkDir, "image/jpeg")
}

func (h *Handlers) serveGuardedFile(w http.ResponseWriter, r *http.Request, path, baseDir, contentType string) {
	canonical, err := safety.ValidateLocalPath(path, baseDir)
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if _, err := os.Stat(canonical); err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeFile(w, r, canonical)
}
