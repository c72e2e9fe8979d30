package feed

import (
	"fmt"
	"time"

	"github.com/eduncan911/podcast"

	"podshelf/internal/db"
	"podshelf/internal/models"
)

// GenerateRSS renders the feed document for one collection. Only ready
// episodes are included; the locally cached thumbnail is preferred over the
// external reference.
func GenerateRSS(collection models.Collection, episodes []models.Episode, baseURL string) (string, error) {
	description := "Episodes published by podshelf."
	if collection.Description != nil && *collection.Description != "" {
		description = *collection.Description
	}

	createdAt := collection.CreatedAt
	updatedAt := collection.UpdatedAt
	p := podcast.New(collection.Name,
		fmt.Sprintf("%s/rss/%s", baseURL, collection.ID),
		description, &createdAt, &updatedAt)

	if collection.Author != nil {
		p.AddAuthor(*collection.Author, "")
	}
	if collection.ArtworkPath != nil {
		p.AddImage(fmt.Sprintf("%s/artwork/%s.jpg", baseURL, collection.ID))
	}

	for i := range episodes {
		episode := &episodes[i]
		if episode.Status != db.StatusReady || episode.AudioPath == nil {
			continue
		}

		item := podcast.Item{
			Title:   episode.Title,
			PubDate: pubDate(episode),
		}
		item.Description = episode.Title
		if episode.Description != nil && *episode.Description != "" {
			item.Description = *episode.Description
		}
		if episode.SourceID != nil {
			item.Link = "https://www.youtube.com/watch?v=" + *episode.SourceID
		}
		if episode.ThumbnailPath != nil {
			item.AddImage(fmt.Sprintf("%s/thumbnails/%s.jpg", baseURL, episode.ID))
		} else if episode.ThumbnailURL != nil {
			item.AddImage(*episode.ThumbnailURL)
		}
		if episode.DurationSeconds != nil {
			item.AddDuration(int64(*episode.DurationSeconds))
		}

		var size int64
		if episode.AudioSizeBytes != nil {
			size = *episode.AudioSizeBytes
		}
		item.AddEnclosure(fmt.Sprintf("%s/audio/%s.mp3", baseURL, episode.ID), podcast.MP3, size)

		if _, err := p.AddItem(item); err != nil {
			return "", err
		}
	}

	return p.String(), nil
}

func pubDate(e *models.Episode) *time.Time {
	if e.PublishedAt != nil {
		return e.PublishedAt
	}
	t := e.CreatedAt
	return &t
}
