package models

import "time"

const (
	SourceKindExternal = "external"
	SourceKindUploaded = "uploaded"
)

type Episode struct {
	ID           string  `db:"id"`
	CollectionID string  `db:"collection_id"`
	SourceID     *string `db:"source_id"`
	SourceKind   string  `db:"source_kind"`

	Title       string     `db:"title"`
	Description *string    `db:"description"`
	PublishedAt *time.Time `db:"published_at"`

	// original_* hold the values last fetched from the source (or set at
	// upload time). A display field is considered user-edited once it no
	// longer matches its original counterpart.
	OriginalTitle       *string    `db:"original_title"`
	OriginalDescription *string    `db:"original_description"`
	OriginalPublishedAt *time.Time `db:"original_published_at"`

	ThumbnailURL  *string `db:"thumbnail_url"`
	ThumbnailPath *string `db:"thumbnail_path"`

	AudioPath       *string `db:"audio_path"`
	AudioSizeBytes  *int64  `db:"audio_size_bytes"`
	DurationSeconds *int    `db:"duration_seconds"`

	Status          string    `db:"status"`
	StatusChangedAt time.Time `db:"status_changed_at"`

	ErrorMessage     *string `db:"error_message"`
	OriginalFilename *string `db:"original_filename"`

	CreatedAt time.Time `db:"created_at"`
}

// TitleEdited reports whether the user has customized the title away from
// the value last fetched from the source; the other *Edited methods do the
// same for their fields.
func (e *Episode) TitleEdited() bool {
	return e.OriginalTitle != nil && e.Title != *e.OriginalTitle
}

func (e *Episode) DescriptionEdited() bool {
	if e.OriginalDescription == nil {
		return false
	}
	return e.Description == nil || *e.Description != *e.OriginalDescription
}

func (e *Episode) PublishedAtEdited() bool {
	if e.OriginalPublishedAt == nil {
		return false
	}
	return e.PublishedAt == nil || !e.PublishedAt.Equal(*e.OriginalPublishedAt)
}
