package models

import "time"

// Collection is a named destination that publishes its episodes as one feed.
type Collection struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Author      *string   `db:"author"`
	Description *string   `db:"description"`
	ArtworkPath *string   `db:"artwork_path"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}
