package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	AIAPIKey   string
	EmbedModel string
	EmbedDim   int
	GenModel   string

	VectorDBPath string
	IndexFile    string
	MetadataFile string

	SessionTTLHours int
	MaxContextTurns int

	MaxFileSizeMB       int
	AnalysisConcurrency int

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	JWTSecret string
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		AIAPIKey:            getEnv("GEMINI_API_KEY", ""),
		EmbedModel:          getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:            getEnvInt("EMBED_DIM", 384),
		GenModel:            getEnv("GEN_MODEL", "gemini-1.5-flash"),
		VectorDBPath:        getEnv("VECTOR_DB_PATH", "./vector_db"),
		IndexFile:           getEnv("INDEX_FILE", "invoice_vectors.bin"),
		MetadataFile:        getEnv("METADATA_FILE", "invoice_metadata.json"),
		SessionTTLHours:     getEnvInt("SESSION_TTL_HOURS", 24),
		MaxContextTurns:     getEnvInt("MAX_CONTEXT_TURNS", 10),
		MaxFileSizeMB:       getEnvInt("MAX_FILE_SIZE_MB", 50),
		AnalysisConcurrency: getEnvInt("ANALYSIS_CONCURRENCY", 4),
		AwsAccessKey:        getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:        getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:           getEnv("AWS_REGION", "us-east-2"),
		BucketName:          getEnv("BUCKET_NAME", ""),
		JWTSecret:           getEnv("JWT_SECRET", ""),
	}

	if cfg.AIAPIKey == "" {
		log.Println("WARN: GEMINI_API_KEY not set; analysis and chat will fail until configured")
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
