package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration, loaded from the
// environment (optionally seeded from a .env file).
type Config struct {
	DiscordToken  string
	YouTubeAPIKey string
	CommandPrefix string

	LogLevel string
	LogPath  string

	// Resolution cache for repeated queries.
	ResolveCacheSize int
	ResolveCacheTTL  time.Duration
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// Load reads configuration from the environment. A missing .env file is
// not an error; existing environment variables are never overridden.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DiscordToken:     getEnv("DISCORD_TOKEN", ""),
		YouTubeAPIKey:    getEnv("YOUTUBE_API_KEY", ""),
		CommandPrefix:    getEnv("COMMAND_PREFIX", "!"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPath:          getEnv("LOG_PATH", ""),
		ResolveCacheSize: getEnvInt("RESOLVE_CACHE_SIZE", 256),
		ResolveCacheTTL:  time.Duration(getEnvInt("RESOLVE_CACHE_TTL_MINUTES", 15)) * time.Minute,
	}
}
