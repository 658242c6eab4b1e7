package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
//
// Variables already set in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnvOverrides copies credentials and paths from the environment onto cfg.
func ApplyEnvOverrides(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	set(&cfg.Archive.AccessKey, "ARCHIVE_ACCESS_KEY")
	set(&cfg.Archive.SecretKey, "ARCHIVE_SECRET_KEY")
	set(&cfg.Archive.Email, "ARCHIVE_EMAIL")
	set(&cfg.Archive.BaseURL, "ARCHIVE_BASE_URL")
	set(&cfg.YouTube.APIKey, "YOUTUBE_API_KEY")
	set(&cfg.YouTube.ChannelID, "YOUTUBE_CHANNEL_ID")
	set(&cfg.YouTube.ClientID, "YOUTUBE_CLIENT_ID")
	set(&cfg.YouTube.ClientSecret, "YOUTUBE_CLIENT_SECRET")
	set(&cfg.Database.Path, "IASYNC_DB_PATH")

	if v := os.Getenv("YOUTUBE_DAILY_QUOTA"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.YouTube.DailyQuota = i
		}
	}
	if v := os.Getenv("IASYNC_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = i
		}
	}
}
