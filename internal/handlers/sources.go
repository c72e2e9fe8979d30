package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

func (h *Handlers) ListSources(w http.ResponseWriter, r *http.Request) {
	collectionID := mux.Vars(r)["id"]

	sources, err := h.store.ListSourcesByCollection(collectionID)
	if err != nil {
		log.Errorf("list sources: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

type updateSourceRequest struct {
	Enabled                *bool `json:"enabled"`
	RefreshIntervalSeconds *int  `json:"refresh_interval_seconds"`
}

// UpdateSource toggles tracking or adjusts the refresh override. Disabling
// is the soft-delete path; sources are never removed automatically.
func (h *Handlers) UpdateSource(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	source, err := h.store.GetCollectionSource(vars["id"])
	if err == sql.ErrNoRows || (err == nil && source.CollectionID != vars["cid"]) {
		writeError(w, http.StatusNotFound, "Source not found")
		return
	}
	if err != nil {
		log.Errorf("get source: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var body updateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if body.Enabled != nil {
		if err := h.store.SetSourceEnabled(source.ID, *body.Enabled); err != nil {
			log.Errorf("set source enabled: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}
	if body.RefreshIntervalSeconds != nil {
		interval := body.RefreshIntervalSeconds
		if *interval <= 0 {
			interval = nil // clear the override
		}
		if err := h.store.SetSourceRefreshInterval(source.ID, interval); err != nil {
			log.Errorf("set source interval: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	source, err = h.store.GetCollectionSource(source.ID)
	if err != nil {
		log.Errorf("reload source: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, source)
}
