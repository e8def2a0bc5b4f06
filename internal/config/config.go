package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and supporting
// services.
type Config struct {
	ListenAddr string

	StoreBackend string // redis or mysql
	RedisURL     string
	MySQLDSN     string

	PayloadBackend string // store or s3
	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3UsePathStyle bool
	S3Prefix       string

	AdminEmail    string
	AdminPassword string

	StartingCredits     int64
	GenerationCost      int64
	MaxImagesPerRequest int

	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderModel   string
	ProviderTimeout time.Duration

	JWTSecret string
	TokenTTL  time.Duration
}

// Load reads configuration from environment variables, applying sane
// defaults. An optional .env file (or configs/.env) is loaded first.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultProviderBaseURL = "https://api.kie.ai"

	cfg := Config{
		ListenAddr:          getEnv("LISTEN_ADDR", ":8080"),
		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", "redis")),
		RedisURL:            os.Getenv("REDIS_URL"),
		MySQLDSN:            os.Getenv("MYSQL_DSN"),
		PayloadBackend:      strings.ToLower(getEnv("PAYLOAD_BACKEND", "store")),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3Region:            os.Getenv("S3_REGION"),
		S3AccessKey:         os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:         os.Getenv("S3_SECRET_KEY"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		S3UsePathStyle:      getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:            getEnv("S3_PREFIX", "images"),
		AdminEmail:          getEnv("ADMIN_EMAIL", "king@admin.com"),
		AdminPassword:       getEnv("ADMIN_PASSWORD", "change-me"),
		StartingCredits:     getInt64("STARTING_CREDITS", 25),
		GenerationCost:      getInt64("GENERATION_COST", 5),
		MaxImagesPerRequest: getInt("MAX_IMAGES_PER_REQUEST", 4),
		ProviderBaseURL:     normalizeProviderBaseURL(getEnv("PROVIDER_BASE_URL", defaultProviderBaseURL), defaultProviderBaseURL),
		ProviderAPIKey:      os.Getenv("PROVIDER_API_KEY"),
		ProviderModel:       getEnv("PROVIDER_MODEL", "flux-2/pro-text-to-image"),
		ProviderTimeout:     time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		TokenTTL:            time.Hour * time.Duration(getInt("TOKEN_TTL_HOURS", 24)),
	}

	var missing []string
	if cfg.ProviderAPIKey == "" {
		missing = append(missing, "PROVIDER_API_KEY")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	switch cfg.StoreBackend {
	case "redis":
		if cfg.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	case "mysql":
		if cfg.MySQLDSN == "" {
			missing = append(missing, "MYSQL_DSN")
		}
	default:
		return Config{}, fmt.Errorf("unsupported STORE_BACKEND: %s", cfg.StoreBackend)
	}
	switch cfg.PayloadBackend {
	case "store":
	case "s3":
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3Bucket == "" {
			missing = append(missing, "S3_BUCKET")
		}
	default:
		return Config{}, fmt.Errorf("unsupported PAYLOAD_BACKEND: %s", cfg.PayloadBackend)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// normalizeProviderBaseURL ensures we always hit the documented API host.
// Some docs use the root kie.ai domain, which returns HTML instead of JSON
// and causes 404s.
func normalizeProviderBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}

	if parsed.Host == "kie.ai" {
		parsed.Host = "api.kie.ai"
	}

	return parsed.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// No env file is fine; the process environment may carry everything.
	return nil
}
