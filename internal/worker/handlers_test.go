package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podshelf/internal/config"
	"podshelf/internal/models"
	"podshelf/internal/test"
	"podshelf/internal/youtube"
	"podshelf/pkg/tasks"
)

type mockResolver struct {
	info     youtube.VideoInfo
	infoErr  error
	items    []string
	itemsErr error
}

func (m *mockResolver) VideoInfo(ctx context.Context, idOrURL string) (youtube.VideoInfo, error) {
	return m.info, m.infoErr
}

func (m *mockResolver) PlaylistItems(ctx context.Context, url string) ([]string, error) {
	return m.items, m.itemsErr
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		AudioDir:                 t.TempDir(),
		ThumbnailDir:             t.TempDir(),
		UploadTmpDir:             t.TempDir(),
		MaxNewEpisodesPerRefresh: 50,
		RefreshInterval:          24 * time.Hour,
		MetadataTimeout:          5 * time.Second,
		DownloadTimeout:          time.Minute,
		ThumbnailTimeout:         time.Second,
		StaleAcquiringAfter:      time.Hour,
		AllowedThumbnailHosts:    []string{"i.ytimg.com"},
	}
}

func stubDownload(t *testing.T, cfg config.Config) {
	original := downloadAudio
	downloadAudio = func(ctx context.Context, videoID, episodeID, destDir string) (string, error) {
		path := filepath.Join(destDir, episodeID+".mp3")
		require.NoError(t, os.WriteFile(path, []byte("dummy audio data"), 0o644))
		return path, nil
	}
	t.Cleanup(func() { downloadAudio = original })
}

func downloadTask(t *testing.T, episodeID string) *asynq.Task {
	payload, err := json.Marshal(tasks.DownloadEpisodePayload{EpisodeID: episodeID})
	require.NoError(t, err)
	return asynq.NewTask(tasks.TypeDownloadEpisode, payload)
}

func episodeColumns() []string {
	return []string{"id", "collection_id", "source_id", "source_kind", "title",
		"original_title", "status", "created_at"}
}

func TestHandleDownloadEpisodeSuccess(t *testing.T) {
	store, mock := test.NewMockStore(t)
	cfg := testConfig(t)
	stubDownload(t, cfg)

	published := time.Date(2023, 9, 15, 0, 0, 0, 0, time.UTC)
	resolver := &mockResolver{info: youtube.VideoInfo{
		ID:          "video1",
		Title:       "Resolved Title",
		Description: "Resolved Description",
		// Disallowed host: caching is skipped, acquisition still succeeds.
		ThumbnailURL: "https://evil.example.com/thumb.jpg",
		Duration:     212,
		PublishedAt:  &published,
	}}

	rows := sqlmock.NewRows(episodeColumns()).
		AddRow("ep1", "col1", "video1", "external", "Loading... (video1)", nil, "pending", time.Now())
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs("ep1").WillReturnRows(rows)
	mock.ExpectExec(`UPDATE episodes SET status = \$1, status_changed_at = now\(\) WHERE id = \$2`).
		WithArgs("acquiring", "ep1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE episodes`).
		WithArgs("Resolved Title", "Resolved Description", sqlmock.AnyArg(),
			"Resolved Title", "Resolved Description", sqlmock.AnyArg(),
			"https://evil.example.com/thumb.jpg", 212, "ep1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE episodes`).
		WithArgs("ready", sqlmock.AnyArg(), int64(16), 212, "ep1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := NewHandlers(store, resolver, &test.MockTaskEnqueuer{}, cfg)
	err := h.HandleDownloadEpisode(context.Background(), downloadTask(t, "ep1"))

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleDownloadEpisodeMissingRowIsNoop(t *testing.T) {
	store, mock := test.NewMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs("gone").WillReturnError(sql.ErrNoRows)

	h := NewHandlers(store, &mockResolver{}, &test.MockTaskEnqueuer{}, testConfig(t))
	err := h.HandleDownloadEpisode(context.Background(), downloadTask(t, "gone"))

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleDownloadEpisodeResolverFailure(t *testing.T) {
	store, mock := test.NewMockStore(t)
	resolver := &mockResolver{infoErr: assert.AnError}

	rows := sqlmock.NewRows(episodeColumns()).
		AddRow("ep1", "col1", "video1", "external", "Loading... (video1)", nil, "pending", time.Now())
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs("ep1").WillReturnRows(rows)
	mock.ExpectExec(`UPDATE episodes SET status = \$1, status_changed_at = now\(\) WHERE id = \$2`).
		WithArgs("acquiring", "ep1").WillReturnResult(sqlmock.NewResult(0, 1))
	// Sanitized message, never the raw error.
	mock.ExpectExec(`UPDATE episodes SET status = \$1, status_changed_at = now\(\), error_message = \$2 WHERE id = \$3`).
		WithArgs("failed", "Could not fetch item metadata from the source", "ep1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := NewHandlers(store, resolver, &test.MockTaskEnqueuer{}, testConfig(t))
	err := h.HandleDownloadEpisode(context.Background(), downloadTask(t, "ep1"))

	// The error propagates so the queue redelivers with backoff.
	assert.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleDownloadEpisodeUploadedIsTerminal(t *testing.T) {
	store, mock := test.NewMockStore(t)

	rows := sqlmock.NewRows(episodeColumns()).
		AddRow("ep1", "col1", nil, "uploaded", "My Upload", nil, "pending", time.Now())
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs("ep1").WillReturnRows(rows)
	mock.ExpectExec(`UPDATE episodes SET status = \$1, status_changed_at = now\(\), error_message = \$2 WHERE id = \$3`).
		WithArgs("failed", sqlmock.AnyArg(), "ep1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := NewHandlers(store, &mockResolver{}, &test.MockTaskEnqueuer{}, testConfig(t))
	err := h.HandleDownloadEpisode(context.Background(), downloadTask(t, "ep1"))

	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeResolvedMetadataPreservesCustomization(t *testing.T) {
	a := "A"
	episode := models.Episode{Title: "Custom", OriginalTitle: &a}
	info := youtube.VideoInfo{Title: "B", Description: "fresh"}

	mergeResolvedMetadata(&episode, info)

	assert.Equal(t, "Custom", episode.Title, "user edit must survive a resolver run")
	require.NotNil(t, episode.OriginalTitle)
	assert.Equal(t, "B", *episode.OriginalTitle, "original must track current truth")
}

func TestMergeResolvedMetadataOverwritesUnedited(t *testing.T) {
	a := "A"
	episode := models.Episode{Title: "A", OriginalTitle: &a}

	mergeResolvedMetadata(&episode, youtube.VideoInfo{Title: "B"})

	assert.Equal(t, "B", episode.Title)
	assert.Equal(t, "B", *episode.OriginalTitle)
}

func TestMergeResolvedMetadataFirstRun(t *testing.T) {
	episode := models.Episode{Title: "Loading... (video1)"}
	published := time.Date(2023, 9, 15, 0, 0, 0, 0, time.UTC)

	mergeResolvedMetadata(&episode, youtube.VideoInfo{
		Title: "B", Description: "d", PublishedAt: &published, Duration: 10,
	})

	assert.Equal(t, "B", episode.Title)
	require.NotNil(t, episode.Description)
	assert.Equal(t, "d", *episode.Description)
	require.NotNil(t, episode.PublishedAt)
	assert.True(t, episode.PublishedAt.Equal(published))
}

func TestRetryDelayIsExponential(t *testing.T) {
	task := asynq.NewTask("episode:download", nil)
	d0 := RetryDelay(0, assert.AnError, task)
	d1 := RetryDelay(1, assert.AnError, task)
	d3 := RetryDelay(3, assert.AnError, task)

	assert.Equal(t, 2*d0, d1)
	assert.Equal(t, 8*d0, d3)
}
