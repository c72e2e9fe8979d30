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

	"podshelf/internal/media"
	"podshelf/internal/test"
	"podshelf/pkg/tasks"
)

func convertTask(t *testing.T, episodeID, stagedPath string) *asynq.Task {
	payload, err := json.Marshal(tasks.ConvertUploadPayload{EpisodeID: episodeID, StagedPath: stagedPath})
	require.NoError(t, err)
	return asynq.NewTask(tasks.TypeConvertUpload, payload)
}

func stubConvert(t *testing.T) {
	originalConvert := convertToMP3
	originalProbe := probeMedia
	convertToMP3 = func(ctx context.Context, inputPath, outputPath string) error {
		return os.WriteFile(outputPath, []byte("converted!"), 0o644)
	}
	probeMedia = func(ctx context.Context, path string) (media.FileMetadata, error) {
		return media.FileMetadata{DurationSeconds: 99}, nil
	}
	t.Cleanup(func() {
		convertToMP3 = originalConvert
		probeMedia = originalProbe
	})
}

func TestHandleConvertUploadSuccess(t *testing.T) {
	store, mock := test.NewMockStore(t)
	cfg := testConfig(t)
	stubConvert(t)

	stagedPath := filepath.Join(cfg.UploadTmpDir, "staged.wav")
	require.NoError(t, os.WriteFile(stagedPath, []byte("raw"), 0o644))

	rows := sqlmock.NewRows(episodeColumns()).
		AddRow("ep1", "col1", nil, "uploaded", "My Upload", nil, "pending", time.Now())
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs("ep1").WillReturnRows(rows)
	mock.ExpectExec(`UPDATE episodes SET status = \$1, status_changed_at = now\(\) WHERE id = \$2`).
		WithArgs("acquiring", "ep1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE episodes`).
		WithArgs("ready", sqlmock.AnyArg(), int64(len("converted!")), 99, "ep1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := NewHandlers(store, &mockResolver{}, &test.MockTaskEnqueuer{}, cfg)
	err := h.HandleConvertUpload(context.Background(), convertTask(t, "ep1", stagedPath))

	require.NoError(t, err)
	assert.NoFileExists(t, stagedPath, "staged file must be removed after conversion")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A staged path outside the upload directory must never be fed to the
// converter; the failure is terminal, not retried.
func TestHandleConvertUploadRejectsForeignPath(t *testing.T) {
	store, mock := test.NewMockStore(t)
	cfg := testConfig(t)

	rows := sqlmock.NewRows(episodeColumns()).
		AddRow("ep1", "col1", nil, "uploaded", "My Upload", nil, "pending", time.Now())
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs("ep1").WillReturnRows(rows)
	mock.ExpectExec(`UPDATE episodes SET status = \$1, status_changed_at = now\(\), error_message = \$2 WHERE id = \$3`).
		WithArgs("failed", sqlmock.AnyArg(), "ep1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := NewHandlers(store, &mockResolver{}, &test.MockTaskEnqueuer{}, cfg)
	err := h.HandleConvertUpload(context.Background(), convertTask(t, "ep1", "/etc/passwd"))

	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleConvertUploadMissingRowCleansStagedFile(t *testing.T) {
	store, mock := test.NewMockStore(t)
	cfg := testConfig(t)

	stagedPath := filepath.Join(cfg.UploadTmpDir, "orphan.wav")
	require.NoError(t, os.WriteFile(stagedPath, []byte("raw"), 0o644))

	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs("gone").WillReturnError(sql.ErrNoRows)

	h := NewHandlers(store, &mockResolver{}, &test.MockTaskEnqueuer{}, cfg)
	err := h.HandleConvertUpload(context.Background(), convertTask(t, "gone", stagedPath))

	assert.NoError(t, err)
	assert.NoFileExists(t, stagedPath)
	assert.NoError(t, mock.ExpectationsWereMet())
}
