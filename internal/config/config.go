package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"ecoportal/internal/domain/upload"
	"ecoportal/internal/pkg/validator"
)

const (
	defaultHTTPAddr       = ":8080"
	defaultDatabaseURL    = "ecoportal.db"
	defaultJWTSecret      = "change-me-jwt-secret"
	defaultJWTTTL         = "12h"
	defaultCORSOrigins    = "http://localhost:3000,http://localhost:5173"
	defaultRateLimit      = "100"
	defaultRateWindow     = "15m"
	defaultStagingMaxAge  = "1h"
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultRateLimitReply = "Too many upload requests from this IP, please try again later."
)

type Config struct {
	AppEnv      string
	HTTPAddr    string `validate:"required"`
	DatabaseURL string `validate:"required"`

	JWTSecret string        `validate:"required"`
	JWTTTL    time.Duration `validate:"gt=0"`

	CORSOrigins []string `validate:"min=1,dive,required"`
	// Empty means no proxy is trusted and the peer address is the client IP.
	TrustedProxies []string `validate:"dive,ip|cidr"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json logfmt"`
	Debug     bool

	UploadRateLimit  int           `validate:"gt=0"`
	UploadRateWindow time.Duration `validate:"gt=0"`
	RateLimitMessage string
	StagingMaxAge    time.Duration `validate:"gt=0"`
	Upload           upload.Policy `validate:"-"`
}

// Load reads an optional .env file and then the environment. Values missing
// from both fall back to defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.CORSOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", defaultCORSOrigins))
	cfg.TrustedProxies = splitList(os.Getenv("TRUSTED_PROXIES"))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel)))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", defaultLogFormat)))
	cfg.Debug = parseBoolEnv("DEBUG", "false")
	cfg.RateLimitMessage = getEnv("UPLOAD_RATE_LIMIT_MESSAGE", defaultRateLimitReply)

	var err error
	if cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", defaultJWTTTL); err != nil {
		return nil, err
	}
	if cfg.UploadRateWindow, err = parseDurationEnv("UPLOAD_RATE_WINDOW", defaultRateWindow); err != nil {
		return nil, err
	}
	if cfg.StagingMaxAge, err = parseDurationEnv("UPLOAD_STAGING_MAX_AGE", defaultStagingMaxAge); err != nil {
		return nil, err
	}
	if cfg.UploadRateLimit, err = parseIntEnv("UPLOAD_RATE_LIMIT", defaultRateLimit); err != nil {
		return nil, err
	}
	if cfg.Upload, err = loadUploadPolicy(); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadUploadPolicy() (upload.Policy, error) {
	p := upload.DefaultPolicy()
	p.BaseDir = strings.TrimSpace(getEnv("UPLOAD_DIR", p.BaseDir))
	p.PublicPrefix = strings.TrimSpace(getEnv("UPLOAD_PUBLIC_PREFIX", p.PublicPrefix))

	quota, err := parseBytesEnv("UPLOAD_QUOTA", p.QuotaBytes)
	if err != nil {
		return p, err
	}
	p.QuotaBytes = quota

	for env, category := range map[string]upload.Category{
		"UPLOAD_MAX_IMAGE":    upload.CategoryImage,
		"UPLOAD_MAX_PDF":      upload.CategoryPDF,
		"UPLOAD_MAX_DOCUMENT": upload.CategoryDocument,
		"UPLOAD_MAX_VIDEO":    upload.CategoryVideo,
		"UPLOAD_MAX_AUDIO":    upload.CategoryAudio,
	} {
		size, err := parseBytesEnv(env, p.MaxSize[category])
		if err != nil {
			return p, err
		}
		p.MaxSize[category] = size
	}
	return p, nil
}

func validateConfig(cfg *Config) error {
	if errs := validator.Validate(cfg); errs != nil {
		return fmt.Errorf("invalid configuration: %v", errs)
	}
	if err := cfg.Upload.Validate(); err != nil {
		return fmt.Errorf("invalid upload policy: %w", err)
	}
	if IsProdLike(cfg.AppEnv) && isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
		return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
	}
	return nil
}

func IsProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

// parseBytesEnv accepts plain byte counts or human units such as 50MB or 2GiB.
func parseBytesEnv(name string, fallback int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback, nil
	}
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	if n == 0 || n > 1<<62 {
		return 0, fmt.Errorf("invalid %s value %q: out of range", name, value)
	}
	return int64(n), nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
