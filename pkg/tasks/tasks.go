package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TypeDownloadEpisode = "episode:download"
	TypeConvertUpload   = "episode:convert"
	TypeRefreshSource   = "source:refresh"
	TypeCheckAllSources = "sources:check"
	TypeReclaimStale    = "episodes:reclaim"
)

// Per-type retry ceilings. Beyond these the episode stays failed until a
// producer explicitly requeues it.
const (
	downloadMaxRetry = 3
	convertMaxRetry  = 2
	refreshMaxRetry  = 2
)

type DownloadEpisodePayload struct {
	EpisodeID string
}

// NewDownloadEpisodeTask builds the acquisition job for one episode. Callers
// must only enqueue it after the transaction creating the episode row has
// committed.
func NewDownloadEpisodeTask(episodeID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DownloadEpisodePayload{EpisodeID: episodeID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDownloadEpisode, payload, asynq.MaxRetry(downloadMaxRetry)), nil
}

type ConvertUploadPayload struct {
	EpisodeID  string
	StagedPath string
}

func NewConvertUploadTask(episodeID, stagedPath string) (*asynq.Task, error) {
	payload, err := json.Marshal(ConvertUploadPayload{EpisodeID: episodeID, StagedPath: stagedPath})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeConvertUpload, payload, asynq.MaxRetry(convertMaxRetry)), nil
}

type RefreshSourcePayload struct {
	SourceID string
}

func NewRefreshSourceTask(sourceID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RefreshSourcePayload{SourceID: sourceID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRefreshSource, payload, asynq.MaxRetry(refreshMaxRetry)), nil
}

func NewCheckAllSourcesTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeCheckAllSources, nil), nil
}

func NewReclaimStaleTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeReclaimStale, nil), nil
}
