package handlers

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"podshelf/internal/db"
	"podshelf/internal/media"
	"podshelf/internal/models"
	"podshelf/pkg/tasks"
)

// UploadEpisode accepts an audio file for a collection. Small files are
// converted inline; large ones are staged and handed to the job runner so
// the request never blocks on transcoding.
func (h *Handlers) UploadEpisode(w http.ResponseWriter, r *http.Request) {
	collectionID := mux.Vars(r)["id"]

	if _, err := h.store.GetCollection(collectionID); err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Collection not found")
		return
	} else if err != nil {
		log.Errorf("get collection: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "An audio file is required")
		return
	}
	defer file.Close()

	if err := media.ValidateUpload(header.Filename, header.Size, h.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stagedPath, err := h.stageUpload(file, header.Filename)
	if err != nil {
		log.Errorf("stage upload: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not store the uploaded file")
		return
	}

	filename := header.Filename
	title := media.TitleFromFilename(filename)
	episode, err := h.store.CreateEpisode(db.NewEpisode{
		CollectionID:     collectionID,
		SourceKind:       models.SourceKindUploaded,
		Title:            title,
		OriginalFilename: &filename,
	})
	if err != nil {
		media.RemoveIfExists(stagedPath)
		log.Errorf("create episode: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if header.Size > h.cfg.InlineConvertMaxBytes {
		// Episode row is committed; deferring conversion to the queue.
		task, err := tasks.NewConvertUploadTask(episode.ID, stagedPath)
		if err == nil {
			_, err = h.asynqClient.Enqueue(task)
		}
		if err != nil {
			log.WithField("episode_id", episode.ID).Errorf("enqueue convert task: %v", err)
			writeError(w, http.StatusInternalServerError, "Could not queue the conversion")
			return
		}
		writeJSON(w, http.StatusAccepted, episode)
		return
	}

	h.convertInline(r.Context(), w, episode, stagedPath)
}

func (h *Handlers) stageUpload(file io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.cfg.UploadTmpDir, 0o755); err != nil {
		return "", err
	}
	// Staged name is server-generated; the client filename never touches
	// the filesystem.
	stagedPath := filepath.Join(h.cfg.UploadTmpDir, uuid.NewString()+filepath.Ext(filename))
	out, err := os.Create(stagedPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		media.RemoveIfExists(stagedPath)
		return "", err
	}
	return stagedPath, nil
}

func (h *Handlers) convertInline(ctx context.Context, w http.ResponseWriter, episode models.Episode, stagedPath string) {
	defer media.RemoveIfExists(stagedPath)

	if err := h.store.MarkAcquiring(episode.ID); err != nil {
		log.Errorf("mark acquiring: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	convertCtx, cancel := context.WithTimeout(ctx, h.cfg.DownloadTimeout)
	defer cancel()

	outputPath := filepath.Join(h.cfg.AudioDir, episode.ID+".mp3")
	if err := media.ConvertToMP3(convertCtx, stagedPath, outputPath); err != nil {
		log.WithField("episode_id", episode.ID).Errorf("inline conversion: %v", err)
		if err := h.store.MarkFailed(episode.ID, "Audio conversion failed"); err != nil {
			log.Errorf("mark failed: %v", err)
		}
		writeError(w, http.StatusUnprocessableEntity, "Audio conversion failed")
		return
	}

	meta, err := media.Probe(convertCtx, outputPath)
	if err != nil {
		log.WithField("episode_id", episode.ID).Warnf("probe converted file: %v", err)
	}
	if meta.Title != "" {
		if err := h.store.UpdateEditableFields(episode.ID, meta.Title, episode.Description, episode.PublishedAt); err != nil {
			log.Warnf("apply probed title: %v", err)
		}
	}

	fileInfo, err := os.Stat(outputPath)
	if err != nil {
		log.WithField("episode_id", episode.ID).Errorf("stat converted file: %v", err)
		if err := h.store.MarkFailed(episode.ID, "Audio conversion failed"); err != nil {
			log.Errorf("mark failed: %v", err)
		}
		writeError(w, http.StatusInternalServerError, "Audio conversion failed")
		return
	}

	if err := h.store.MarkReady(episode.ID, outputPath, fileInfo.Size(), meta.DurationSeconds); err != nil {
		log.Errorf("mark ready: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	episode, err = h.store.GetEpisode(episode.ID)
	if err != nil {
		log.Errorf("reload episode: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, episode)
}
