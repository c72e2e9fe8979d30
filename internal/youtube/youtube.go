// Package youtube resolves external item metadata and enumerates playlist
// members by shelling out to yt-dlp.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Swappable for tests.
var execCommandContext = exec.CommandContext

// Enumerating a very large playlist is capped; anything beyond is picked up
// by later refreshes.
const playlistEnumerationLimit = 500

type VideoInfo struct {
	ID           string
	Title        string
	Description  string
	ThumbnailURL string
	Duration     int
	PublishedAt  *time.Time
}

type PlaylistInfo struct {
	ID    string
	Title string
}

type Resolver struct {
	metadataTimeout time.Duration
}

func NewResolver(metadataTimeout time.Duration) *Resolver {
	return &Resolver{metadataTimeout: metadataTimeout}
}

type ytDlpEntry struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Thumbnail   string  `json:"thumbnail"`
	Duration    float64 `json:"duration"`
	UploadDate  string  `json:"upload_date"`
	Type        string  `json:"_type"`
	Entries     []struct {
		ID string `json:"id"`
	} `json:"entries"`
}

// VideoInfo fetches current metadata for a single item.
func (r *Resolver) VideoInfo(ctx context.Context, idOrURL string) (VideoInfo, error) {
	url := idOrURL
	if len(idOrURL) == 11 && !strings.HasPrefix(idOrURL, "http") {
		url = "https://www.youtube.com/watch?v=" + idOrURL
	}

	ctx, cancel := context.WithTimeout(ctx, r.metadataTimeout)
	defer cancel()

	cmd := execCommandContext(ctx, "yt-dlp",
		"--skip-download",
		"--no-warnings",
		"-J",
		url,
	)
	output, err := cmd.Output()
	if err != nil {
		return VideoInfo{}, errors.Wrap(err, "yt-dlp metadata")
	}

	entry, err := decodeEntry(output)
	if err != nil {
		return VideoInfo{}, err
	}

	info := VideoInfo{
		ID:           entry.ID,
		Title:        entry.Title,
		Description:  entry.Description,
		ThumbnailURL: entry.Thumbnail,
		Duration:     int(entry.Duration),
	}
	if info.Title == "" {
		info.Title = "Unknown Title"
	}
	if t, err := time.Parse("20060102", entry.UploadDate); err == nil {
		info.PublishedAt = &t
	}
	return info, nil
}

// PlaylistItems enumerates the member item ids of an external playlist.
func (r *Resolver) PlaylistItems(ctx context.Context, url string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.metadataTimeout)
	defer cancel()

	cmd := execCommandContext(ctx, "yt-dlp",
		"--flat-playlist",
		"--no-warnings",
		"--playlist-end", fmt.Sprintf("%d", playlistEnumerationLimit),
		"-J",
		url,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrap(err, "yt-dlp playlist")
	}

	entry, err := decodeEntry(output)
	if err != nil {
		return nil, err
	}

	if entry.Type != "playlist" {
		if entry.ID == "" {
			return nil, nil
		}
		return []string{entry.ID}, nil
	}
	ids := make([]string, 0, len(entry.Entries))
	for _, e := range entry.Entries {
		if e.ID != "" {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

// PlaylistInfo fetches the playlist title without enumerating members.
func (r *Resolver) PlaylistInfo(ctx context.Context, url string) (PlaylistInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, r.metadataTimeout)
	defer cancel()

	cmd := execCommandContext(ctx, "yt-dlp",
		"--flat-playlist",
		"--no-warnings",
		"--playlist-end", "1",
		"-J",
		url,
	)
	output, err := cmd.Output()
	if err != nil {
		return PlaylistInfo{}, errors.Wrap(err, "yt-dlp playlist info")
	}

	entry, err := decodeEntry(output)
	if err != nil {
		return PlaylistInfo{}, err
	}
	title := entry.Title
	if title == "" {
		title = "Unknown Playlist"
	}
	return PlaylistInfo{ID: entry.ID, Title: title}, nil
}

// Sometimes yt-dlp prints warnings before the JSON document.
func decodeEntry(output []byte) (ytDlpEntry, error) {
	var entry ytDlpEntry
	start := strings.Index(string(output), "{")
	if start == -1 {
		return entry, errors.New("no JSON found in yt-dlp output")
	}
	if err := json.Unmarshal(output[start:], &entry); err != nil {
		return entry, errors.Wrap(err, "unmarshal yt-dlp output")
	}
	return entry, nil
}

var (
	videoIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
	}
	playlistIDPattern = regexp.MustCompile(`[?&]list=([a-zA-Z0-9_-]+)`)
)

// ExtractVideoID pulls the 11-character item id out of the common URL
// forms. Empty result means the URL is not recognized.
func ExtractVideoID(url string) string {
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

func ExtractPlaylistID(url string) string {
	if m := playlistIDPattern.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}

func IsPlaylistURL(url string) bool {
	return strings.Contains(url, "playlist?list=") || strings.Contains(url, "&list=")
}
