package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Object store
	StoreBackend   string // "s3", "minio" or "memory"
	AWSRegion      string
	Bucket         string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool

	// Document layout
	CatalogKey       string
	EmbeddingKey     string
	StatusPrefix     string
	ImagePrefix      string
	FallbackImageKey string

	// Catalog writer
	SimilarityThreshold float64
	MaxRetries          int
	NewRecipeHours      int

	// Upload pipeline
	MaxUploadFiles int
	MaxFileSize    int64
	PDFMaxPages    int

	// Gemini Configuration
	GeminiAPIKey        string
	GeminiModel         string
	GeminiEmbedModel    string
	AIRequestsPerMinute int
	AIDailyQuota        int

	// Google Custom Search Configuration
	SearchAPIKey       string
	SearchCX           string
	ProblematicDomains []string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Auth Configuration
	JWTSecret         string
	JWTExpiresIn      string
	AdminEmail        string
	AdminPasswordHash string
	BcryptCost        int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Scheduled jobs
	SweepCron           string
	StatusRetentionDays int

	// Telemetry
	OTLPEndpoint   string
	TracingEnabled bool
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		// Object store
		StoreBackend:   getEnv("STORE_BACKEND", "s3"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		Bucket:         getEnv("BUCKET_NAME", ""),
		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		// Document layout
		CatalogKey:       getEnv("CATALOG_KEY", "jsondata/combined_data.json"),
		EmbeddingKey:     getEnv("EMBEDDING_KEY", "jsondata/recipe_embeddings.json"),
		StatusPrefix:     getEnv("STATUS_PREFIX", "upload-status/"),
		ImagePrefix:      getEnv("IMAGE_PREFIX", "images/"),
		FallbackImageKey: getEnv("FALLBACK_IMAGE_KEY", "assets/images/skillet.png"),

		// Catalog writer
		SimilarityThreshold: getEnvFloat64("SIMILARITY_THRESHOLD", 0.85),
		MaxRetries:          getEnvInt("MAX_RETRIES", 3),
		NewRecipeHours:      getEnvInt("NEW_RECIPE_HOURS", 72),

		// Upload pipeline
		MaxUploadFiles: getEnvInt("MAX_UPLOAD_FILES", 10),
		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 20971520), // 20MB per file
		PDFMaxPages:    getEnvInt("PDF_MAX_PAGES", 50),

		// Gemini
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiEmbedModel:    getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),
		AIRequestsPerMinute: getEnvInt("AI_REQUESTS_PER_MINUTE", 60),
		AIDailyQuota:        getEnvInt("AI_DAILY_QUOTA", 2000),

		// Google Custom Search
		SearchAPIKey: getEnv("GOOGLE_SEARCH_API_KEY", ""),
		SearchCX:     getEnv("GOOGLE_SEARCH_CX", ""),
		ProblematicDomains: strings.Split(getEnv("PROBLEMATIC_DOMAINS",
			"lookaside.instagram.com,instagram.com,pinterest.com,facebook.com,twitter.com,x.com,tiktok.com"), ","),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// Auth
		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTExpiresIn:      getEnv("JWT_EXPIRES_IN", "24h"),
		AdminEmail:        getEnv("ADMIN_EMAIL", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		BcryptCost:        getEnvInt("BCRYPT_COST", 12),

		// Rate limiting
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		// Scheduled jobs
		SweepCron:           getEnv("SWEEP_CRON", "0 * * * *"),
		StatusRetentionDays: getEnvInt("STATUS_RETENTION_DAYS", 30),

		// Telemetry
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
	}

	// Validate required fields
	if cfg.Bucket == "" && cfg.StoreBackend != "memory" {
		return nil, fmt.Errorf("BUCKET_NAME is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("MAX_RETRIES must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
