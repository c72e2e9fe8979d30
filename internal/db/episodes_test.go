package db

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { mockDb.Close() })
	return &Store{DB: sqlx.NewDb(mockDb, "sqlmock")}, mock
}

func TestRequeueFailedOnlyFromFailed(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE episodes`).
		WithArgs(StatusPending, "ep1", StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	requeued, err := store.RequeueFailed("ep1")
	require.NoError(t, err)
	assert.True(t, requeued)

	// Same statement, but the row is not failed: zero rows match and the
	// requeue is reported as rejected.
	mock.ExpectExec(`UPDATE episodes`).
		WithArgs(StatusPending, "ep2", StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 0))

	requeued, err = store.RequeueFailed("ep2")
	require.NoError(t, err)
	assert.False(t, requeued)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReclaimStaleAcquiring(t *testing.T) {
	store, mock := newMockStore(t)

	cutoff := time.Now().Add(-time.Hour)
	mock.ExpectQuery(`UPDATE episodes`).
		WithArgs(StatusPending, StatusAcquiring, cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ep1"))

	ids, err := store.ReclaimStaleAcquiring(cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"ep1"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEpisodeInsertsPending(t *testing.T) {
	store, mock := newMockStore(t)

	sourceID := "video1"
	mock.ExpectQuery(`INSERT INTO episodes`).
		WithArgs(sqlmock.AnyArg(), "col1", "video1", "external", "Loading... (video1)", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "collection_id", "source_id", "status"}).
			AddRow("ep1", "col1", "video1", StatusPending))

	episode, err := store.CreateEpisode(NewEpisode{
		CollectionID: "col1",
		SourceID:     &sourceID,
		SourceKind:   "external",
		Title:        "Loading... (video1)",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, episode.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
