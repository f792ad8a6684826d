package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	MinRefinementIterations = 1
	MaxRefinementIterations = 5
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv               string
	Port                 string
	DatabaseURL          string
	OutputDir            string
	VLMProvider          string
	VLMModel             string
	ImageProvider        string
	ImageModel           string
	GoogleAPIKey         string
	GeminiBaseURL        string
	OpenRouterAPIKey     string
	OpenRouterBaseURL    string
	RefinementIterations int
	MaxConcurrentJobs    int
	JobTTL               time.Duration
	JobSweepInterval     time.Duration
	HTTPReadTimeout      time.Duration
	HTTPWriteTimeout     time.Duration
	HTTPIdleTimeout      time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 getEnv("PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		OutputDir:            getEnv("OUTPUT_DIR", "./output"),
		VLMProvider:          getEnv("VLM_PROVIDER", "gemini"),
		VLMModel:             getEnv("VLM_MODEL", "gemini-2.5-flash"),
		ImageProvider:        getEnv("IMAGE_PROVIDER", "google_imagen"),
		ImageModel:           getEnv("IMAGE_MODEL", "imagen-3.0-generate-002"),
		GoogleAPIKey:         os.Getenv("GOOGLE_API_KEY"),
		GeminiBaseURL:        getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenRouterAPIKey:     os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL:    getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		RefinementIterations: getEnvInt("REFINEMENT_ITERATIONS", 3),
		MaxConcurrentJobs:    getEnvInt("MAX_CONCURRENT_JOBS", 4),
		JobTTL:               time.Minute * time.Duration(getEnvInt("JOB_TTL_MINUTES", 120)),
		JobSweepInterval:     time.Minute * time.Duration(getEnvInt("JOB_SWEEP_INTERVAL_MINUTES", 5)),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.RefinementIterations < MinRefinementIterations || cfg.RefinementIterations > MaxRefinementIterations {
		return nil, fmt.Errorf("REFINEMENT_ITERATIONS must be between %d and %d, got %d",
			MinRefinementIterations, MaxRefinementIterations, cfg.RefinementIterations)
	}

	if cfg.MaxConcurrentJobs < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1, got %d", cfg.MaxConcurrentJobs)
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
