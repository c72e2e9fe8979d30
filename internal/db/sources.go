package db

import (
	"github.com/google/uuid"

	"podshelf/internal/models"
)

// UpsertCollectionSource registers a playlist for periodic refresh. Adding a
// playlist that is already tracked re-enables it rather than duplicating it.
func (s *Store) UpsertCollectionSource(collectionID, sourceURL, sourceID string, title *string) (models.CollectionSource, error) {
	source := models.CollectionSource{}
	err := s.DB.Get(&source, `
		INSERT INTO collection_sources (id, collection_id, source_url, source_id, title)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection_id, source_id)
		DO UPDATE SET source_url = EXCLUDED.source_url, enabled = TRUE
		RETURNING *`,
		uuid.NewString(), collectionID, sourceURL, sourceID, title)
	return source, err
}

func (s *Store) GetCollectionSource(id string) (models.CollectionSource, error) {
	source := models.CollectionSource{}
	err := s.DB.Get(&source, "SELECT * FROM collection_sources WHERE id = $1", id)
	return source, err
}

func (s *Store) ListSourcesByCollection(collectionID string) ([]models.CollectionSource, error) {
	var sources []models.CollectionSource
	err := s.DB.Select(&sources,
		"SELECT * FROM collection_sources WHERE collection_id = $1 ORDER BY created_at",
		collectionID)
	return sources, err
}

func (s *Store) ListEnabledSources() ([]models.CollectionSource, error) {
	var sources []models.CollectionSource
	err := s.DB.Select(&sources,
		"SELECT * FROM collection_sources WHERE enabled ORDER BY created_at")
	return sources, err
}

func (s *Store) SetSourceEnabled(id string, enabled bool) error {
	_, err := s.DB.Exec("UPDATE collection_sources SET enabled = $1 WHERE id = $2", enabled, id)
	return err
}

func (s *Store) SetSourceRefreshInterval(id string, seconds *int) error {
	_, err := s.DB.Exec(
		"UPDATE collection_sources SET refresh_interval_seconds = $1 WHERE id = $2", seconds, id)
	return err
}
