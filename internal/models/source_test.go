package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectionSourceDueAt(t *testing.T) {
	interval := 24 * time.Hour
	now := time.Now().UTC()

	t.Run("never refreshed is due", func(t *testing.T) {
		s := CollectionSource{}
		assert.True(t, s.DueAt(now, interval))
	})

	t.Run("one second past the boundary is due", func(t *testing.T) {
		last := now.Add(-interval - time.Second)
		s := CollectionSource{LastRefreshedAt: &last}
		assert.True(t, s.DueAt(now, interval))
	})

	t.Run("exactly at the boundary is due", func(t *testing.T) {
		last := now.Add(-interval)
		s := CollectionSource{LastRefreshedAt: &last}
		assert.True(t, s.DueAt(now, interval))
	})

	t.Run("one second before the boundary is not due", func(t *testing.T) {
		last := now.Add(-interval + time.Second)
		s := CollectionSource{LastRefreshedAt: &last}
		assert.False(t, s.DueAt(now, interval))
	})

	t.Run("override shortens the interval", func(t *testing.T) {
		override := 60
		last := now.Add(-2 * time.Minute)
		s := CollectionSource{LastRefreshedAt: &last, RefreshIntervalSeconds: &override}
		assert.True(t, s.DueAt(now, interval))
	})
}

func TestEpisodeEditDetection(t *testing.T) {
	a := "A"
	e := Episode{Title: "A", OriginalTitle: &a}
	assert.False(t, e.TitleEdited())

	e.Title = "Custom"
	assert.True(t, e.TitleEdited())

	// No original recorded yet: nothing counts as edited.
	fresh := Episode{Title: "anything"}
	assert.False(t, fresh.TitleEdited())
	assert.False(t, fresh.DescriptionEdited())
	assert.False(t, fresh.PublishedAtEdited())
}
