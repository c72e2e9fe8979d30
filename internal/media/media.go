// Package media produces the canonical mp3 artifact, either by downloading
// an external item or by converting a staged upload.
package media

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Swappable for tests.
var execCommandContext = exec.CommandContext

var allowedUploadExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
}

// ValidateUpload rejects unsupported formats and oversized files before
// anything is staged. Returns a user-safe message on rejection.
func ValidateUpload(filename string, size, maxBytes int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedUploadExtensions[ext] {
		return errors.Errorf("unsupported file format %q", ext)
	}
	if size > maxBytes {
		return errors.Errorf("file too large (max %d MB)", maxBytes/(1024*1024))
	}
	return nil
}

// DownloadAudio fetches an external item and transcodes it to mp3 under
// destDir, returning the artifact path. The output is named by episode id so
// the same item in two collections never collides.
func DownloadAudio(ctx context.Context, videoID, episodeID, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.Wrap(err, "create audio dir")
	}

	outputPath := filepath.Join(destDir, episodeID+".mp3")
	if _, err := os.Stat(outputPath); err == nil {
		log.WithField("path", outputPath).Info("audio already exists, skipping download")
		return outputPath, nil
	}

	cmd := execCommandContext(ctx, "yt-dlp",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "192K",
		"--no-warnings",
		"-o", filepath.Join(destDir, episodeID+".%(ext)s"),
		"https://www.youtube.com/watch?v="+videoID,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		log.WithField("video_id", videoID).Errorf("yt-dlp download failed: %v, output: %s", err, output)
		return "", errors.Wrap(err, "yt-dlp download")
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", errors.Errorf("download finished but %s was not created", outputPath)
	}
	return outputPath, nil
}

// ConvertToMP3 transcodes a staged upload to the canonical format.
func ConvertToMP3(ctx context.Context, inputPath, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return errors.Wrap(err, "create output dir")
	}

	cmd := execCommandContext(ctx, "ffmpeg",
		"-y",
		"-i", inputPath,
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		outputPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		log.WithField("input", inputPath).Errorf("ffmpeg failed: %v, output: %s", err, output)
		return errors.Wrap(err, "ffmpeg convert")
	}
	return nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

// Metadata extracted from an uploaded file's container tags.
type FileMetadata struct {
	DurationSeconds int
	Title           string
}

// Probe reads duration and title tags with ffprobe. A missing tag is not an
// error; the zero value degrades to filename-derived titles upstream.
func Probe(ctx context.Context, path string) (FileMetadata, error) {
	cmd := execCommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return FileMetadata{}, errors.Wrap(err, "ffprobe")
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(output, &probed); err != nil {
		return FileMetadata{}, errors.Wrap(err, "unmarshal ffprobe output")
	}

	meta := FileMetadata{}
	if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
		meta.DurationSeconds = int(d)
	}
	for key, value := range probed.Format.Tags {
		if strings.EqualFold(key, "title") {
			meta.Title = value
		}
	}
	return meta, nil
}

// RemoveIfExists unlinks an artifact, tolerating its absence.
func RemoveIfExists(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithField("path", path).Warnf("failed to remove file: %v", err)
	}
}

// TitleFromFilename derives a display title from an uploaded filename.
func TitleFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" {
		return "Untitled"
	}
	return base
}
