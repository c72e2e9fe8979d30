package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable the processes need. It is built once in main
// and handed to component constructors; nothing reads the environment after
// Load returns.
type Config struct {
	BaseURL     string
	ListenAddr  string
	DatabaseURL string
	RedisAddr   string

	DataDir      string
	AudioDir     string
	ArtworkDir   string
	ThumbnailDir string
	UploadTmpDir string

	RefreshInterval          time.Duration
	RefreshCheckInterval     time.Duration
	MaxNewEpisodesPerRefresh int

	MetadataTimeout  time.Duration
	DownloadTimeout  time.Duration
	ThumbnailTimeout time.Duration

	// Episodes stuck in acquiring longer than this are swept back to pending.
	StaleAcquiringAfter time.Duration

	// Uploads below this many bytes are converted inline during the request;
	// larger ones go through the task queue.
	InlineConvertMaxBytes int64
	MaxUploadBytes        int64

	AllowedThumbnailHosts []string

	AppPassword string
	JWTSecret   string
	TokenTTL    time.Duration
}

func Load() Config {
	cfg := Config{
		BaseURL:     getString("BASE_URL", "http://localhost:8080"),
		ListenAddr:  ":" + getString("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   getString("REDIS_ADDR", "127.0.0.1:6379"),

		DataDir: getString("DATA_DIR", "./data"),

		RefreshInterval:          getDuration("REFRESH_INTERVAL", 24*time.Hour),
		RefreshCheckInterval:     getDuration("REFRESH_CHECK_INTERVAL", 5*time.Minute),
		MaxNewEpisodesPerRefresh: getInt("MAX_NEW_EPISODES_PER_REFRESH", 50),

		MetadataTimeout:  getDuration("METADATA_TIMEOUT", 60*time.Second),
		DownloadTimeout:  getDuration("DOWNLOAD_TIMEOUT", 20*time.Minute),
		ThumbnailTimeout: getDuration("THUMBNAIL_TIMEOUT", 30*time.Second),

		InlineConvertMaxBytes: getInt64("INLINE_CONVERT_MAX_BYTES", 50*1024*1024),
		MaxUploadBytes:        getInt64("MAX_UPLOAD_BYTES", 500*1024*1024),

		AllowedThumbnailHosts: getList("ALLOWED_THUMBNAIL_HOSTS",
			[]string{"i.ytimg.com", "img.youtube.com"}),

		AppPassword: getString("APP_PASSWORD", "changeme"),
		JWTSecret:   getString("JWT_SECRET", "change-me-in-production"),
		TokenTTL:    getDuration("TOKEN_TTL", 24*time.Hour),
	}

	cfg.AudioDir = getString("AUDIO_DIR", cfg.DataDir+"/audio")
	cfg.ArtworkDir = getString("ARTWORK_DIR", cfg.DataDir+"/artwork")
	cfg.ThumbnailDir = getString("THUMBNAIL_DIR", cfg.DataDir+"/thumbnails")
	cfg.UploadTmpDir = getString("UPLOAD_TMP_DIR", cfg.DataDir+"/tmp")
	cfg.StaleAcquiringAfter = getDuration("STALE_ACQUIRING_AFTER", 3*cfg.DownloadTimeout)

	return cfg
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
