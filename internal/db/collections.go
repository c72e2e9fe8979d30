package db

import (
	"github.com/google/uuid"

	"podshelf/internal/models"
)

func (s *Store) CreateCollection(name string, author, description *string) (models.Collection, error) {
	collection := models.Collection{}
	err := s.DB.Get(&collection, `
		INSERT INTO collections (id, name, author, description)
		VALUES ($1, $2, $3, $4)
		RETURNING *`,
		uuid.NewString(), name, author, description)
	return collection, err
}

func (s *Store) GetCollection(id string) (models.Collection, error) {
	collection := models.Collection{}
	err := s.DB.Get(&collection, "SELECT * FROM collections WHERE id = $1", id)
	return collection, err
}

func (s *Store) ListCollections() ([]models.Collection, error) {
	var collections []models.Collection
	err := s.DB.Select(&collections, "SELECT * FROM collections ORDER BY created_at")
	return collections, err
}

func (s *Store) UpdateCollection(c models.Collection) error {
	_, err := s.DB.Exec(`
		UPDATE collections
		SET name = $1, author = $2, description = $3, artwork_path = $4, updated_at = now()
		WHERE id = $5`,
		c.Name, c.Author, c.Description, c.ArtworkPath, c.ID)
	return err
}

// DeleteCollection removes a collection, its episodes and its tracked
// sources in one transaction, and returns every stored file path so the
// caller can unlink the artifacts after the transaction has committed.
// Unlinking afterwards avoids orphaned-file risk on rollback.
func (s *Store) DeleteCollection(id string) ([]string, error) {
	collection, err := s.GetCollection(id)
	if err != nil {
		return nil, err
	}

	episodes, err := s.ListEpisodesByCollection(id)
	if err != nil {
		return nil, err
	}

	tx, err := s.DB.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM episodes WHERE collection_id = $1", id); err != nil {
		return nil, err
	}
	if _, err := tx.Exec("DELETE FROM collection_sources WHERE collection_id = $1", id); err != nil {
		return nil, err
	}
	if _, err := tx.Exec("DELETE FROM collections WHERE id = $1", id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	var paths []string
	for _, episode := range episodes {
		paths = append(paths, artifactPaths(episode)...)
	}
	if collection.ArtworkPath != nil {
		paths = append(paths, *collection.ArtworkPath)
	}
	return paths, nil
}
