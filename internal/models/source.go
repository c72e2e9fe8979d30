package models

import "time"

// CollectionSource links a collection to an external playlist that is
// periodically re-scanned for new items. Sources are never auto-deleted;
// disabling is the soft-delete path.
type CollectionSource struct {
	ID                     string     `db:"id"`
	CollectionID           string     `db:"collection_id"`
	SourceURL              string     `db:"source_url"`
	SourceID               string     `db:"source_id"`
	Title                  *string    `db:"title"`
	LastRefreshedAt        *time.Time `db:"last_refreshed_at"`
	RefreshIntervalSeconds *int       `db:"refresh_interval_seconds"`
	Enabled                bool       `db:"enabled"`
	CreatedAt              time.Time  `db:"created_at"`
}

// EffectiveInterval returns the per-source override when set, else the
// system default.
func (s *CollectionSource) EffectiveInterval(def time.Duration) time.Duration {
	if s.RefreshIntervalSeconds != nil && *s.RefreshIntervalSeconds > 0 {
		return time.Duration(*s.RefreshIntervalSeconds) * time.Second
	}
	return def
}

// DueAt reports whether the source is due for a refresh at the given moment.
func (s *CollectionSource) DueAt(now time.Time, def time.Duration) bool {
	if s.LastRefreshedAt == nil {
		return true
	}
	return !now.Before(s.LastRefreshedAt.Add(s.EffectiveInterval(def)))
}
