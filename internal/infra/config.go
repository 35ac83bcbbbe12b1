package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	// Database pool
	DBMaxConns        int
	DBMinConns        int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	DBConnectTimeout  time.Duration

	// Storage
	StorageDriver string // "filesystem" or "s3"
	StoragePath   string
	S3Bucket      string
	S3Region      string
	S3Endpoint    string

	// Generation
	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	GeminiRequestsPerS float64
	ClipScorerURL      string
	UseMockLikeness    bool
	UpscalerURL        string
	UpscalerKey        string
	UpscaleFactor      int

	MaxGenerationAttempts int
	LikenessThreshold     float64
	MaxRefinements        int

	// Watermark
	WatermarkText    string
	WatermarkOpacity float64

	// Rate limiting
	RateLimitMaxGenerations int
	RateLimitWindow         time.Duration
	GeoIPDBPath             string

	// Admin / feature flags
	AdminAPIToken        string
	TestMode             bool
	AllowDigitalOnly     bool
	BypassPaymentForTest bool

	HTTPReadTimeout       time.Duration
	HTTPReadHeaderTimeout time.Duration
	HTTPWriteTimeout      time.Duration
	HTTPIdleTimeout       time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:        getEnvInt("DB_MIN_CONNS", 1),
		DBConnMaxLifetime: time.Minute * time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 60)),
		DBConnMaxIdleTime: time.Minute * time.Duration(getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 30)),
		DBConnectTimeout:  time.Second * time.Duration(getEnvInt("DB_CONNECT_TIMEOUT_SECONDS", 10)),

		StorageDriver: getEnv("STORAGE_DRIVER", "filesystem"),
		StoragePath:   getEnv("STORAGE_PATH", "./storage"),
		S3Bucket:      os.Getenv("S3_BUCKET"),
		S3Region:      os.Getenv("S3_REGION"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),

		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-3-pro-image-preview"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiRequestsPerS: getEnvFloat("GEMINI_REQUESTS_PER_SECOND", 1),
		ClipScorerURL:      getEnv("CLIP_SCORER_URL", "http://127.0.0.1:8001/score"),
		UseMockLikeness:    getEnvBool("USE_MOCK_LIKENESS", false),
		UpscalerURL:        os.Getenv("UPSCALER_URL"),
		UpscalerKey:        os.Getenv("UPSCALER_KEY"),
		UpscaleFactor:      getEnvInt("UPSCALE_FACTOR", 2),

		MaxGenerationAttempts: getEnvInt("MAX_GENERATION_ATTEMPTS", 3),
		LikenessThreshold:     getEnvFloat("LIKENESS_THRESHOLD", 0.85),
		MaxRefinements:        getEnvInt("MAX_REFINEMENTS", 3),

		WatermarkText:    getEnv("WATERMARK_TEXT", "petpawtrait.net"),
		WatermarkOpacity: getEnvFloat("WATERMARK_OPACITY", 0.68),

		RateLimitMaxGenerations: getEnvInt("RATE_LIMIT_MAX_GENERATIONS", 3),
		RateLimitWindow:         time.Second * time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 3600)),
		GeoIPDBPath:             os.Getenv("GEOIP_DB_PATH"),

		AdminAPIToken:        os.Getenv("ADMIN_API_TOKEN"),
		TestMode:             getEnvBool("FEATURE_TEST_MODE", false),
		AllowDigitalOnly:     getEnvBool("FEATURE_ALLOW_DIGITAL_ONLY", true),
		BypassPaymentForTest: getEnvBool("FEATURE_BYPASS_PAYMENT_FOR_TEST", false),

		HTTPReadTimeout:       time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPReadHeaderTimeout: time.Second * time.Duration(getEnvInt("HTTP_READ_HEADER_TIMEOUT_SECONDS", 5)),
		HTTPWriteTimeout:      time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:       time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DBMaxConns < 1 || cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return nil, fmt.Errorf("DB_MIN_CONNS must be within [0, DB_MAX_CONNS]")
	}

	if cfg.MaxGenerationAttempts < 1 {
		return nil, fmt.Errorf("MAX_GENERATION_ATTEMPTS must be >= 1")
	}

	if cfg.LikenessThreshold < 0 || cfg.LikenessThreshold > 1 {
		return nil, fmt.Errorf("LIKENESS_THRESHOLD must be within [0,1]")
	}

	if cfg.StorageDriver == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
