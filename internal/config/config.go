// Package config loads worker configuration: required values come from
// the environment (optionally via a .env file), everything else falls
// back to documented defaults. A config.yaml overlay can retune the
// scoring and chunking knobs without touching the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds every knob the worker reads from its environment.
type Config struct {
	AppName     string
	AppVersion  string
	Debug       bool
	Environment string
	APIPrefix   string

	Port         string
	WorkerAPIKey string

	DatabaseURL string

	StorageBucket string

	LLMProviderURL string
	LLMAPIKey      string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64

	ExtractionConfidenceThreshold float64
	AutoApprovalThreshold         float64

	ChunkerMaxChunkSize            int
	ChunkerOverlap                 int
	ChunkerMaxTransactionsPerChunk int

	MaxFileSizeMB int
	VectorDims    int

	LogLevel string
}

// Overlay is the subset of Config that config.yaml may retune.
type Overlay struct {
	ExtractionConfidenceThreshold  *float64 `yaml:"extraction_confidence_threshold"`
	AutoApprovalThreshold          *float64 `yaml:"auto_approval_threshold"`
	ChunkerMaxChunkSize            *int     `yaml:"chunker_max_chunk_size"`
	ChunkerOverlap                 *int     `yaml:"chunker_overlap"`
	ChunkerMaxTransactionsPerChunk *int     `yaml:"chunker_max_transactions_per_chunk"`
}

// Load reads environment variables (loading a .env file first when
// present), applies defaults, then overlays config.yaml if found.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	apiKey := os.Getenv("WORKER_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("WORKER_API_KEY environment variable is required")
	}

	llmKey := os.Getenv("LLM_API_KEY")
	if llmKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY environment variable is required")
	}

	cfg := &Config{
		AppName:     getenv("APP_NAME", "ledgerflow"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Debug:       getenvBool("DEBUG", false),
		Environment: getenv("ENVIRONMENT", "development"),
		APIPrefix:   getenv("API_PREFIX", "/api/v1"),

		Port:         getenv("PORT", "8080"),
		WorkerAPIKey: apiKey,

		DatabaseURL: dbURL,

		StorageBucket: getenv("STORAGE_BUCKET", "documents"),

		LLMProviderURL: getenv("LLM_PROVIDER_URL", "https://api.openai.com/v1/chat/completions"),
		LLMAPIKey:      llmKey,
		LLMModel:       getenv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getenvInt("LLM_MAX_TOKENS", 4096),
		LLMTemperature: getenvFloat("LLM_TEMPERATURE", 0.3),

		ExtractionConfidenceThreshold: getenvFloat("EXTRACTION_CONFIDENCE_THRESHOLD", 0.7),
		AutoApprovalThreshold:         getenvFloat("AUTO_APPROVAL_THRESHOLD", 0.85),

		ChunkerMaxChunkSize:            getenvInt("CHUNKER_MAX_CHUNK_SIZE", 4000),
		ChunkerOverlap:                 getenvInt("CHUNKER_OVERLAP", 200),
		ChunkerMaxTransactionsPerChunk: getenvInt("CHUNKER_MAX_TRANSACTIONS_PER_CHUNK", 30),

		MaxFileSizeMB: getenvInt("MAX_FILE_SIZE_MB", 50),
		VectorDims:    getenvInt("VECTOR_DIMS", 1024),

		LogLevel: getenv("LOG_LEVEL", "info"),
	}

	if err := applyYAMLOverlay(cfg, getenv("CONFIG_FILE", "config.yaml")); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyYAMLOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var overlay Overlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if overlay.ExtractionConfidenceThreshold != nil {
		cfg.ExtractionConfidenceThreshold = *overlay.ExtractionConfidenceThreshold
	}
	if overlay.AutoApprovalThreshold != nil {
		cfg.AutoApprovalThreshold = *overlay.AutoApprovalThreshold
	}
	if overlay.ChunkerMaxChunkSize != nil {
		cfg.ChunkerMaxChunkSize = *overlay.ChunkerMaxChunkSize
	}
	if overlay.ChunkerOverlap != nil {
		cfg.ChunkerOverlap = *overlay.ChunkerOverlap
	}
	if overlay.ChunkerMaxTransactionsPerChunk != nil {
		cfg.ChunkerMaxTransactionsPerChunk = *overlay.ChunkerMaxTransactionsPerChunk
	}

	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
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

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
