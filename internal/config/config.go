package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	LogEnv      string
	LogLevel    string

	SessionTTL   time.Duration
	StrictMode   bool
	LoginPath    string
	CookieName   string
	CookieSecure bool
	RoutesFile   string

	RateLimitPerMinute int
	RateLimitBurst     int

	RelayPollInterval time.Duration
	RelayBatchSize    int
	MigrationsDir     string
}

// LoadEnvFiles loads .env files that exist; real environment variables win.
func LoadEnvFiles(files ...string) {
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}
}

func Load() Config {
	port := os.Getenv("FRONTDESK_PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		LogEnv:             readString("APP_ENV", "dev"),
		LogLevel:           readString("LOG_LEVEL", "info"),
		SessionTTL:         readDurationSeconds("FRONTDESK_SESSION_TTL_SECONDS", 8*60*60),
		StrictMode:         readBool("FRONTDESK_STRICT_MODE", false),
		LoginPath:          readString("FRONTDESK_LOGIN_PATH", "/login"),
		CookieName:         readString("FRONTDESK_COOKIE_NAME", "fd_session"),
		CookieSecure:       readBool("FRONTDESK_COOKIE_SECURE", true),
		RoutesFile:         os.Getenv("FRONTDESK_ROUTES_FILE"),
		RateLimitPerMinute: readInt("FRONTDESK_RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("FRONTDESK_RATE_LIMIT_BURST", 30),
		RelayPollInterval:  readDurationSeconds("FRONTDESK_RELAY_POLL_SECONDS", 1),
		RelayBatchSize:     readInt("FRONTDESK_RELAY_BATCH_SIZE", 100),
		MigrationsDir:      readString("FRONTDESK_MIGRATIONS_DIR", "migrations"),
	}
}

func readString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
