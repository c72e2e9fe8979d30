package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"podshelf/internal/config"
	"podshelf/internal/db"
	"podshelf/internal/middleware"
	"podshelf/internal/youtube"
	"podshelf/pkg/tasks"
)

// SourceResolver is the slice of the metadata resolver the producer surface
// needs: recognizing and expanding playlist references at add time.
type SourceResolver interface {
	PlaylistInfo(ctx context.Context, url string) (youtube.PlaylistInfo, error)
	PlaylistItems(ctx context.Context, url string) ([]string, error)
}

type Handlers struct {
	store       *db.Store
	asynqClient tasks.TaskEnqueuer
	resolver    SourceResolver
	auth        *middleware.Auth
	cfg         config.Config
}

func New(store *db.Store, asynqClient tasks.TaskEnqueuer, resolver SourceResolver, auth *middleware.Auth, cfg config.Config) *Handlers {
	return &Handlers{
		store:       store,
		asynqClient: asynqClient,
		resolver:    resolver,
		auth:        auth,
		cfg:         cfg,
	}
}

// Register wires all routes. The serving endpoints stay public so podcast
// clients can fetch them; everything else sits behind auth.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	r.HandleFunc("/rss/{id}", h.GetRSSFeed).Methods(http.MethodGet)
	r.HandleFunc("/audio/{id}.mp3", h.ServeAudio).Methods(http.MethodGet)
	r.HandleFunc("/thumbnails/{id}.jpg", h.ServeThumbnail).Methods(http.MethodGet)
	r.HandleFunc("/artwork/{id}.jpg", h.ServeArtwork).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.auth.Middleware)

	api.HandleFunc("/collections", h.ListCollections).Methods(http.MethodGet)
	api.HandleFunc("/collections", h.CreateCollection).Methods(http.MethodPost)
	api.HandleFunc("/collections/{id}", h.GetCollection).Methods(http.MethodGet)
	api.HandleFunc("/collections/{id}", h.UpdateCollection).Methods(http.MethodPatch)
	api.HandleFunc("/collections/{id}", h.DeleteCollection).Methods(http.MethodDelete)
	api.HandleFunc("/collections/{id}/artwork", h.UploadArtwork).Methods(http.MethodPost)
	api.HandleFunc("/collections/{id}/items", h.AddItems).Methods(http.MethodPost)
	api.HandleFunc("/collections/{id}/upload", h.UploadEpisode).Methods(http.MethodPost)
	api.HandleFunc("/collections/{id}/sources", h.ListSources).Methods(http.MethodGet)
	api.HandleFunc("/collections/{cid}/sources/{id}", h.UpdateSource).Methods(http.MethodPatch)
	api.HandleFunc("/collections/{cid}/episodes/{id}", h.UpdateEpisode).Methods(http.MethodPatch)
	api.HandleFunc("/collections/{cid}/episodes/{id}", h.DeleteEpisode).Methods(http.MethodDelete)
	api.HandleFunc("/collections/{cid}/episodes/{id}/retry", h.RetryEpisode).Methods(http.MethodPost)
	api.HandleFunc("/storage", h.GetStorageInfo).Methods(http.MethodGet)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	token, err := h.auth.IssueToken(body.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
