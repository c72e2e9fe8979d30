package youtube

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVideoID(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":      "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ":                     "dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ":        "dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ":       "dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42": "dQw4w9WgXcQ",
		"https://example.com/watch?v=dQw4w9WgXcQ":          "",
		"not a url": "",
	}
	for url, want := range cases {
		assert.Equal(t, want, ExtractVideoID(url), url)
	}
}

func TestExtractPlaylistID(t *testing.T) {
	assert.Equal(t, "PLabc_123",
		ExtractPlaylistID("https://www.youtube.com/playlist?list=PLabc_123"))
	assert.Equal(t, "PLabc",
		ExtractPlaylistID("https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLabc"))
	assert.Equal(t, "", ExtractPlaylistID("https://www.youtube.com/watch?v=dQw4w9WgXcQ"))
}

func TestIsPlaylistURL(t *testing.T) {
	assert.True(t, IsPlaylistURL("https://www.youtube.com/playlist?list=PLabc"))
	assert.True(t, IsPlaylistURL("https://www.youtube.com/watch?v=x&list=PLabc"))
	assert.False(t, IsPlaylistURL("https://www.youtube.com/watch?v=dQw4w9WgXcQ"))
}

func mockExec(t *testing.T) {
	original := execCommandContext
	execCommandContext = func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		cs := []string{"-test.run=TestHelperProcess", "--", name}
		cs = append(cs, arg...)
		cmd := exec.Command(os.Args[0], cs...)
		cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1", "YT_DLP_ARGS=" + strings.Join(arg, " ")}
		return cmd
	}
	t.Cleanup(func() { execCommandContext = original })
}

func TestVideoInfo(t *testing.T) {
	mockExec(t)
	r := NewResolver(5 * time.Second)

	info, err := r.VideoInfo(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", info.ID)
	assert.Equal(t, "Test Title", info.Title)
	assert.Equal(t, "Test Description", info.Description)
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq720.jpg", info.ThumbnailURL)
	assert.Equal(t, 212, info.Duration)
	require.NotNil(t, info.PublishedAt)
	assert.Equal(t, 2023, info.PublishedAt.Year())
}

func TestPlaylistItems(t *testing.T) {
	mockExec(t)
	r := NewResolver(5 * time.Second)

	ids, err := r.PlaylistItems(context.Background(), "https://www.youtube.com/playlist?list=PLabc")
	require.NoError(t, err)
	assert.Equal(t, []string{"video1", "video2", "video3"}, ids)
}

// TestHelperProcess isn't a real test. It's used as a helper for tests that
// need to mock exec.CommandContext.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := strings.Split(os.Getenv("YT_DLP_ARGS"), " ")

	if contains(args, "--flat-playlist") {
		fmt.Println(`{"_type": "playlist", "id": "PLabc", "title": "Test Playlist", "entries": [{"id": "video1"}, {"id": "video2"}, {"id": "video3"}]}`)
		os.Exit(0)
	}

	fmt.Println(`{"id": "dQw4w9WgXcQ", "title": "Test Title", "description": "Test Description", "thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq720.jpg", "duration": 212.4, "upload_date": "20230915"}`)
	os.Exit(0)
}

func contains(s []string, str string) bool {
	for _, v := range s {
		if v == str {
			return true
		}
	}
	return false
}
