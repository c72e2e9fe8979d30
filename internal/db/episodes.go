package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"podshelf/internal/models"
)

// NewEpisode describes a row to be created as pending.
type NewEpisode struct {
	CollectionID     string
	SourceID         *string
	SourceKind       string
	Title            string
	OriginalFilename *string
}

func (s *Store) CreateEpisode(n NewEpisode) (models.Episode, error) {
	return insertEpisode(s.DB, n)
}

// CreateEpisodeTx creates a pending episode inside an open transaction, so a
// refresh can commit a whole batch atomically before any job is enqueued.
func (s *Store) CreateEpisodeTx(tx *sqlx.Tx, n NewEpisode) (models.Episode, error) {
	return insertEpisode(tx, n)
}

func insertEpisode(q sqlx.Queryer, n NewEpisode) (models.Episode, error) {
	episode := models.Episode{}
	err := sqlx.Get(q, &episode, `
		INSERT INTO episodes (id, collection_id, source_id, source_kind, title, original_filename)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		uuid.NewString(), n.CollectionID, n.SourceID, n.SourceKind, n.Title, n.OriginalFilename)
	return episode, err
}

func (s *Store) GetEpisode(id string) (models.Episode, error) {
	episode := models.Episode{}
	err := s.DB.Get(&episode, "SELECT * FROM episodes WHERE id = $1", id)
	return episode, err
}

func (s *Store) GetEpisodeInCollection(collectionID, id string) (models.Episode, error) {
	episode := models.Episode{}
	err := s.DB.Get(&episode,
		"SELECT * FROM episodes WHERE id = $1 AND collection_id = $2", id, collectionID)
	return episode, err
}

func (s *Store) ListEpisodesByCollection(collectionID string) ([]models.Episode, error) {
	var episodes []models.Episode
	err := s.DB.Select(&episodes,
		"SELECT * FROM episodes WHERE collection_id = $1 ORDER BY created_at", collectionID)
	return episodes, err
}

func (s *Store) ListReadyEpisodesByCollection(collectionID string) ([]models.Episode, error) {
	var episodes []models.Episode
	err := s.DB.Select(&episodes,
		"SELECT * FROM episodes WHERE collection_id = $1 AND status = $2 ORDER BY created_at",
		collectionID, StatusReady)
	return episodes, err
}

// ExistingSourceIDs returns the set of external item ids already present in
// a collection. Used by refresh to compute which enumerated items are new.
func (s *Store) ExistingSourceIDs(collectionID string) (map[string]struct{}, error) {
	var ids []string
	err := s.DB.Select(&ids,
		"SELECT source_id FROM episodes WHERE collection_id = $1 AND source_id IS NOT NULL",
		collectionID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// MarkAcquiring is persisted before any external call, so a crash mid-job
// leaves a visibly stuck row rather than a silently lost one.
func (s *Store) MarkAcquiring(id string) error {
	_, err := s.DB.Exec(
		"UPDATE episodes SET status = $1, status_changed_at = now() WHERE id = $2",
		StatusAcquiring, id)
	return err
}

func (s *Store) MarkReady(id, audioPath string, sizeBytes int64, durationSeconds int) error {
	_, err := s.DB.Exec(`
		UPDATE episodes
		SET status = $1, status_changed_at = now(),
		    audio_path = $2, audio_size_bytes = $3, duration_seconds = $4,
		    error_message = NULL
		WHERE id = $5`,
		StatusReady, audioPath, sizeBytes, durationSeconds, id)
	return err
}

// MarkFailed records a sanitized, user-safe message; raw error detail only
// ever goes to the logs.
func (s *Store) MarkFailed(id, message string) error {
	_, err := s.DB.Exec(
		"UPDATE episodes SET status = $1, status_changed_at = now(), error_message = $2 WHERE id = $3",
		StatusFailed, message, id)
	return err
}

// RequeueFailed moves an episode back to pending, but only from failed; the
// returned bool reports whether the transition happened. Requeuing from any
// other status is rejected so two attempts can never race on one artifact.
func (s *Store) RequeueFailed(id string) (bool, error) {
	res, err := s.DB.Exec(`
		UPDATE episodes
		SET status = $1, status_changed_at = now(), error_message = NULL
		WHERE id = $2 AND status = $3`,
		StatusPending, id, StatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ApplyResolvedMetadata writes the outcome of a resolver run. The caller has
// already performed the customization-preserving merge on the struct.
func (s *Store) ApplyResolvedMetadata(e models.Episode) error {
	_, err := s.DB.Exec(`
		UPDATE episodes
		SET title = $1, description = $2, published_at = $3,
		    original_title = $4, original_description = $5, original_published_at = $6,
		    thumbnail_url = $7, duration_seconds = $8
		WHERE id = $9`,
		e.Title, e.Description, e.PublishedAt,
		e.OriginalTitle, e.OriginalDescription, e.OriginalPublishedAt,
		e.ThumbnailURL, e.DurationSeconds, e.ID)
	return err
}

func (s *Store) SetThumbnailPath(id, path string) error {
	_, err := s.DB.Exec("UPDATE episodes SET thumbnail_path = $1 WHERE id = $2", path, id)
	return err
}

// UpdateEditableFields stores user edits to the display fields. The
// original_* companions are left alone so edits remain detectable.
func (s *Store) UpdateEditableFields(id string, title string, description *string, publishedAt *time.Time) error {
	_, err := s.DB.Exec(`
		UPDATE episodes SET title = $1, description = $2, published_at = $3 WHERE id = $4`,
		title, description, publishedAt, id)
	return err
}

// RevertToOriginal restores the display fields from their original_*
// companions wherever a fetched value exists.
func (s *Store) RevertToOriginal(id string) error {
	_, err := s.DB.Exec(`
		UPDATE episodes
		SET title = COALESCE(original_title, title),
		    description = COALESCE(original_description, description),
		    published_at = COALESCE(original_published_at, published_at)
		WHERE id = $1`, id)
	return err
}

// DeleteEpisode removes the row and returns any stored file paths so the
// caller can unlink them after the delete has committed.
func (s *Store) DeleteEpisode(collectionID, id string) ([]string, error) {
	episode, err := s.GetEpisodeInCollection(collectionID, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.DB.Exec("DELETE FROM episodes WHERE id = $1", id); err != nil {
		return nil, err
	}
	return artifactPaths(episode), nil
}

func artifactPaths(e models.Episode) []string {
	var paths []string
	if e.AudioPath != nil {
		paths = append(paths, *e.AudioPath)
	}
	if e.ThumbnailPath != nil {
		paths = append(paths, *e.ThumbnailPath)
	}
	return paths
}

// ReclaimStaleAcquiring reverts episodes that have sat in acquiring since
// before the cutoff back to pending, returning their ids for re-enqueue.
// This is the recovery path for a worker that died mid-job without the
// queue redelivering.
func (s *Store) ReclaimStaleAcquiring(cutoff time.Time) ([]string, error) {
	var ids []string
	err := s.DB.Select(&ids, `
		UPDATE episodes
		SET status = $1, status_changed_at = now()
		WHERE status = $2 AND status_changed_at < $3
		RETURNING id`,
		StatusPending, StatusAcquiring, cutoff)
	return ids, err
}

type StorageTotals struct {
	EpisodeCount int   `db:"episode_count"`
	TotalBytes   int64 `db:"total_bytes"`
}

func (s *Store) Storage() (StorageTotals, error) {
	totals := StorageTotals{}
	err := s.DB.Get(&totals, `
		SELECT COUNT(*) AS episode_count, COALESCE(SUM(audio_size_bytes), 0) AS total_bytes
		FROM episodes WHERE status = $1`, StatusReady)
	return totals, err
}
