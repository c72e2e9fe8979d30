package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"podshelf/internal/artwork"
	"podshelf/internal/media"
	"podshelf/internal/models"
)

type collectionRequest struct {
	Name        string  `json:"name"`
	Author      *string `json:"author"`
	Description *string `json:"description"`
}

func (h *Handlers) ListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := h.store.ListCollections()
	if err != nil {
		log.Errorf("list collections: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, collections)
}

func (h *Handlers) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var body collectionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "A collection name is required")
		return
	}

	collection, err := h.store.CreateCollection(body.Name, body.Author, body.Description)
	if err != nil {
		log.Errorf("create collection: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, collection)
}

func (h *Handlers) GetCollection(w http.ResponseWriter, r *http.Request) {
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

	episodes, err := h.store.ListEpisodesByCollection(id)
	if err != nil {
		log.Errorf("list episodes: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		models.Collection
		Episodes []models.Episode `json:"episodes"`
	}{collection, episodes})
}

func (h *Handlers) UpdateCollection(w http.ResponseWriter, r *http.Request) {
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

	var body collectionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Name != "" {
		collection.Name = body.Name
	}
	if body.Author != nil {
		collection.Author = body.Author
	}
	if body.Description != nil {
		collection.Description = body.Description
	}

	if err := h.store.UpdateCollection(collection); err != nil {
		log.Errorf("update collection: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, collection)
}

// DeleteCollection removes the collection and everything it owns. Artifact
// files are unlinked only after the delete has committed.
func (h *Handlers) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	paths, err := h.store.DeleteCollection(id)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Collection not found")
		return
	}
	if err != nil {
		log.Errorf("delete collection: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	for _, path := range paths {
		media.RemoveIfExists(path)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handlers) UploadArtwork(w http.ResponseWriter, r *http.Request) {
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

	file, header, err := r.FormFile("artwork")
	if err != nil {
		writeError(w, http.StatusBadRequest, "An artwork file is required")
		return
	}
	defer file.Close()

	if err := artwork.ValidateImageFilename(header.Filename); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	artworkPath := filepath.Join(h.cfg.ArtworkDir, collection.ID+".jpg")
	if err := artwork.Process(file, artworkPath); err != nil {
		log.Errorf("process artwork: %v", err)
		writeError(w, http.StatusUnprocessableEntity, "Could not process the image")
		return
	}

	collection.ArtworkPath = &artworkPath
	if err := h.store.UpdateCollection(collection); err != nil {
		log.Errorf("update collection: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, collection)
}
