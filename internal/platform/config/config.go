package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Settings holds everything the server needs from the environment.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	// PublicBaseURL overrides the scheme://host used for segment URLs in
	// generated playlists. Empty means derive it from the incoming request.
	PublicBaseURL string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	SegmentBucket      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads the .env file (if present) and returns settings resolved from
// the environment. A missing .env is not an error; system env and defaults
// apply. Pass one or more paths to load from specific files.
func Load(paths ...string) *Settings {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	_ = godotenv.Load(paths...)

	return &Settings{
		Port:               GetEnv("PORT", "8080"),
		LogLevel:           GetEnv("LOG_LEVEL", "info"),
		LogFormat:          GetEnv("LOG_FORMAT", "json"),
		PublicBaseURL:      GetEnv("PUBLIC_BASE_URL", ""),
		AWSRegion:          GetEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     GetEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: GetEnv("AWS_SECRET_ACCESS_KEY", ""),
		SegmentBucket:      GetEnv("SEGMENT_BUCKET", "radio-storage"),
		RedisAddr:          GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      GetEnv("REDIS_PASSWORD", ""),
		RedisDB:            GetEnvInt("REDIS_DB", 0),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}
