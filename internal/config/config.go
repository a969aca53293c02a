package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string
	LogFormat   string

	DBAutoMigrate      bool
	DBStatementTimeout time.Duration

	JWTSecret   string
	JWTIssuer   string
	TokenTTL    time.Duration
	AdminAPIKey string
	PolicyMode  string

	ChecklistCatalogPath  string
	ChecklistCatalogWatch bool
	ListIncludeCancelled  bool

	BlobBackend   string
	BlobLocalDir  string
	S3Bucket      string
	AWSRegion     string
	S3Endpoint    string
	MaxPhotoBytes int

	KafkaBrokers []string
	KafkaTopic   string

	LoginRateLimitRequests      int
	LoginRateLimitWindowSeconds int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                    addr,
		PostgresDSN:                 os.Getenv("POSTGRES_DSN"),
		LogLevel:                    envDefault("LOG_LEVEL", "info"),
		LogFormat:                   envDefault("LOG_FORMAT", "json"),
		DBAutoMigrate:               envBoolDefault("DB_AUTO_MIGRATE", true),
		DBStatementTimeout:          envDurationDefault("DB_STATEMENT_TIMEOUT", 5*time.Second),
		JWTSecret:                   os.Getenv("JWT_SECRET"),
		JWTIssuer:                   envDefault("JWT_ISSUER", "hojas"),
		TokenTTL:                    envDurationDefault("TOKEN_TTL", 12*time.Hour),
		AdminAPIKey:                 os.Getenv("ADMIN_API_KEY"),
		PolicyMode:                  strings.ToLower(envDefault("POLICY_MODE", "static")),
		ChecklistCatalogPath:        os.Getenv("CHECKLIST_CATALOG_PATH"),
		ChecklistCatalogWatch:       envBoolDefault("CHECKLIST_CATALOG_WATCH", false),
		ListIncludeCancelled:        envBoolDefault("SHEETS_LIST_INCLUDE_CANCELLED", false),
		BlobBackend:                 strings.ToLower(envDefault("BLOB_BACKEND", "local")),
		BlobLocalDir:                envDefault("BLOB_LOCAL_DIR", "./data/blobs"),
		S3Bucket:                    os.Getenv("S3_BUCKET"),
		AWSRegion:                   os.Getenv("AWS_REGION"),
		S3Endpoint:                  os.Getenv("S3_ENDPOINT"),
		MaxPhotoBytes:               envIntDefault("MAX_PHOTO_BYTES", 10<<20),
		KafkaBrokers:                envListDefault("KAFKA_BROKERS"),
		KafkaTopic:                  envDefault("KAFKA_TOPIC", "hojas.sheet-events"),
		LoginRateLimitRequests:      envIntDefault("LOGIN_RATE_LIMIT_REQUESTS", 0),
		LoginRateLimitWindowSeconds: envIntDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
		RedisAddr:                   os.Getenv("REDIS_ADDR"),
		RedisPassword:               os.Getenv("REDIS_PASSWORD"),
		RedisDB:                     envIntDefault("REDIS_DB", 0),
	}
}

// MemoryMode reports whether the service runs without Postgres.
func (c Config) MemoryMode() bool {
	return strings.TrimSpace(c.PostgresDSN) == ""
}

func (c Config) LoginRateLimitWindow() time.Duration {
	if c.LoginRateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.LoginRateLimitWindowSeconds) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

// envDurationDefault accepts Go durations ("30s") or a bare number of seconds.
func envDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envListDefault(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
