package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	JWTSecret    string
	Port         string

	ChunkMaxSize    int
	ChunkOverlap    int
	SearchThreshold float64
	SearchLimit     int

	DrainIntervalSec int
	DrainBatch       int
	JobMaxRetries    int
	JobRetentionDays int
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "fieldscope-files"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 1536),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		Port:         getEnv("PORT", "8080"),

		ChunkMaxSize:    getEnvInt("CHUNK_MAX_SIZE", 1000),
		ChunkOverlap:    getEnvInt("CHUNK_OVERLAP", 100),
		SearchThreshold: getEnvFloat("SEARCH_THRESHOLD", 0.75),
		SearchLimit:     getEnvInt("SEARCH_LIMIT", 5),

		DrainIntervalSec: getEnvInt("DRAIN_INTERVAL_SEC", 30),
		DrainBatch:       getEnvInt("DRAIN_BATCH", 10),
		JobMaxRetries:    getEnvInt("JOB_MAX_RETRIES", 3),
		JobRetentionDays: getEnvInt("JOB_RETENTION_DAYS", 7),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}
