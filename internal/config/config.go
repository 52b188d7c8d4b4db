package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	defaultAddr              = ":8080"
	defaultDatabaseURL       = "file:songshare.db"
	defaultMaxUploadSize     = "50MB"
	defaultUploadMaxAttempts = "3"
	defaultAnalyticsTopN     = "5"
	defaultListLimit         = "50"
	defaultMaxListLimit      = "500"
	defaultIOTimeoutBase     = "30s"
	defaultIOMinBytesPerSec  = "64KB"
	defaultResolveCacheSize  = "1024"
	defaultResolveCacheTTL   = "10m"
	defaultRateLimitRPS      = "20"
	defaultRateLimitBurst    = "40"
	defaultBlobBackend       = "local"
	defaultBlobDir           = "./data/blobs"
	defaultSweepGrace        = "1h"

	// A blob is stored before its song row commits; the sweep must not race that window.
	minSweepGrace = time.Minute
)

// Config is the runtime configuration of every songshare binary.
// Values come from the environment; main loads an optional .env first.
type Config struct {
	AppEnv        string
	Addr          string
	DatabaseURL   string
	PublicBaseURL string

	MaxUploadSize     int64
	UploadMaxAttempts int
	AnalyticsTopN     int
	ListLimit         int
	MaxListLimit      int

	IOTimeoutBase    time.Duration
	IOMinBytesPerSec int64

	ResolveCacheSize int
	ResolveCacheTTL  time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
	// TrustedProxies lists the proxy addresses or CIDRs whose X-Forwarded-For
	// is believed. Empty means the peer address is the client.
	TrustedProxies []string

	Blob BlobConfig

	SweepGrace time.Duration
}

// BlobConfig selects and configures the blob store backend.
type BlobConfig struct {
	Backend string // local | s3 | qiniu
	Dir     string
	Prefix  string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	QiniuAccessKey string
	QiniuSecretKey string
	QiniuBucket    string
	QiniuDomain    string
}

func Load() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.Addr = strings.TrimSpace(getEnv("ADDR", defaultAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	var err error
	if cfg.MaxUploadSize, err = parseBytesEnv("MAX_UPLOAD_SIZE", defaultMaxUploadSize); err != nil {
		return nil, err
	}
	if cfg.IOMinBytesPerSec, err = parseBytesEnv("IO_MIN_BYTES_PER_SEC", defaultIOMinBytesPerSec); err != nil {
		return nil, err
	}
	if cfg.UploadMaxAttempts, err = parseIntEnv("UPLOAD_MAX_ATTEMPTS", defaultUploadMaxAttempts); err != nil {
		return nil, err
	}
	if cfg.AnalyticsTopN, err = parseIntEnv("ANALYTICS_TOP_N", defaultAnalyticsTopN); err != nil {
		return nil, err
	}
	if cfg.ListLimit, err = parseIntEnv("LIST_LIMIT", defaultListLimit); err != nil {
		return nil, err
	}
	if cfg.MaxListLimit, err = parseIntEnv("MAX_LIST_LIMIT", defaultMaxListLimit); err != nil {
		return nil, err
	}
	if cfg.ResolveCacheSize, err = parseIntEnv("RESOLVE_CACHE_SIZE", defaultResolveCacheSize); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = parseIntEnv("RATE_LIMIT_BURST", defaultRateLimitBurst); err != nil {
		return nil, err
	}
	if cfg.IOTimeoutBase, err = parseDurationEnv("IO_TIMEOUT_BASE", defaultIOTimeoutBase); err != nil {
		return nil, err
	}
	if cfg.ResolveCacheTTL, err = parseDurationEnv("RESOLVE_CACHE_TTL", defaultResolveCacheTTL); err != nil {
		return nil, err
	}
	if cfg.SweepGrace, err = parseDurationEnv("SWEEP_GRACE", defaultSweepGrace); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = parseFloatEnv("RATE_LIMIT_RPS", defaultRateLimitRPS); err != nil {
		return nil, err
	}

	cfg.TrustedProxies = parseListEnv("TRUSTED_PROXIES")

	cfg.Blob = BlobConfig{
		Backend:        strings.ToLower(strings.TrimSpace(getEnv("BLOB_BACKEND", defaultBlobBackend))),
		Dir:            strings.TrimSpace(getEnv("BLOB_DIR", defaultBlobDir)),
		Prefix:         strings.Trim(strings.TrimSpace(os.Getenv("BLOB_PREFIX")), "/"),
		S3Bucket:       strings.TrimSpace(os.Getenv("S3_BUCKET")),
		S3Region:       strings.TrimSpace(getEnv("S3_REGION", "us-east-1")),
		S3Endpoint:     strings.TrimSpace(os.Getenv("S3_ENDPOINT_URL")),
		S3AccessKey:    strings.TrimSpace(os.Getenv("S3_ACCESS_KEY_ID")),
		S3SecretKey:    strings.TrimSpace(os.Getenv("S3_SECRET_ACCESS_KEY")),
		QiniuAccessKey: strings.TrimSpace(os.Getenv("QINIU_ACCESS_KEY")),
		QiniuSecretKey: strings.TrimSpace(os.Getenv("QINIU_SECRET_KEY")),
		QiniuBucket:    strings.TrimSpace(os.Getenv("QINIU_BUCKET")),
		QiniuDomain:    strings.TrimRight(strings.TrimSpace(os.Getenv("QINIU_DOMAIN")), "/"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	log.Printf("config loaded: env=%s addr=%s blob_backend=%s max_upload=%s", cfg.AppEnv, cfg.Addr, cfg.Blob.Backend, humanize.IBytes(uint64(cfg.MaxUploadSize)))

	return cfg, nil
}

// IOTimeout bounds how long a transfer of size bytes may hold a connection.
func (c *Config) IOTimeout(size int64) time.Duration {
	if size <= 0 || c.IOMinBytesPerSec <= 0 {
		return c.IOTimeoutBase
	}
	return c.IOTimeoutBase + time.Duration(size/c.IOMinBytesPerSec)*time.Second
}

func validateConfig(cfg *Config) error {
	if cfg.Addr == "" {
		return fmt.Errorf("ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be > 0")
	}
	if cfg.UploadMaxAttempts < 1 {
		return fmt.Errorf("UPLOAD_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.AnalyticsTopN < 1 {
		return fmt.Errorf("ANALYTICS_TOP_N must be >= 1")
	}
	if cfg.ListLimit < 1 || cfg.MaxListLimit < cfg.ListLimit {
		return fmt.Errorf("LIST_LIMIT must be >= 1 and <= MAX_LIST_LIMIT")
	}
	if cfg.IOTimeoutBase <= 0 {
		return fmt.Errorf("IO_TIMEOUT_BASE must be > 0")
	}
	if cfg.ResolveCacheSize < 1 {
		return fmt.Errorf("RESOLVE_CACHE_SIZE must be >= 1")
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst == 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be > 0 when rate limiting is enabled")
	}
	for _, proxy := range cfg.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", proxy)
		}
	}
	if cfg.SweepGrace < minSweepGrace {
		return fmt.Errorf("SWEEP_GRACE must be >= %s", minSweepGrace)
	}

	switch cfg.Blob.Backend {
	case "local":
		if cfg.Blob.Dir == "" {
			return fmt.Errorf("BLOB_DIR must not be empty for the local backend")
		}
	case "s3":
		if cfg.Blob.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 backend")
		}
		if (cfg.Blob.S3AccessKey == "") != (cfg.Blob.S3SecretKey == "") {
			return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
		}
	case "qiniu":
		if cfg.Blob.QiniuAccessKey == "" || cfg.Blob.QiniuSecretKey == "" || cfg.Blob.QiniuBucket == "" {
			return fmt.Errorf("QINIU_ACCESS_KEY, QINIU_SECRET_KEY and QINIU_BUCKET are required for the qiniu backend")
		}
		if !strings.HasPrefix(cfg.Blob.QiniuDomain, "http://") && !strings.HasPrefix(cfg.Blob.QiniuDomain, "https://") {
			return fmt.Errorf("QINIU_DOMAIN must be an http(s) URL")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be one of: local, s3, qiniu")
	}

	if isProdLike(cfg.AppEnv) && cfg.PublicBaseURL == "" {
		return fmt.Errorf("in prod/release PUBLIC_BASE_URL must be set")
	}

	return nil
}

func validProxy(s string) bool {
	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		return err == nil
	}
	return net.ParseIP(s) != nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseBytesEnv(name, fallback string) (int64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return int64(n), nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseFloatEnv(name, fallback string) (float64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return f, nil
}

func parseListEnv(name string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(name), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
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
