package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Extractor holds the batch extraction settings. Every entry point takes its
// settings explicitly; nothing reads paths from package-level state.
type Extractor struct {
	DataDir   string
	OutputDir string
	Region    string
	Workers   int
}

// Pipeline holds the rental/availability computation settings.
type Pipeline struct {
	InputDir  string
	OutputDir string
	Recompute bool
}

// API holds the HTTP server settings.
type API struct {
	Port string
}

// LoadExtractor reads extractor configuration from environment variables
// (optionally .env).
func LoadExtractor() (Extractor, error) {
	_ = godotenv.Load(".env")

	cfg := Extractor{}

	cfg.DataDir = strings.TrimSpace(os.Getenv("VELOSTAT_DATA_DIR"))
	if cfg.DataDir == "" {
		return cfg, errors.New("VELOSTAT_DATA_DIR is required")
	}

	cfg.OutputDir = strings.TrimSpace(os.Getenv("VELOSTAT_OUTPUT_DIR"))
	if cfg.OutputDir == "" {
		return cfg, errors.New("VELOSTAT_OUTPUT_DIR is required")
	}

	cfg.Region = strings.TrimSpace(os.Getenv("VELOSTAT_REGION"))

	cfg.Workers = runtime.NumCPU()
	if v := strings.TrimSpace(os.Getenv("VELOSTAT_WORKERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, fmt.Errorf("invalid VELOSTAT_WORKERS: %q", v)
		}
		cfg.Workers = n
	}

	return cfg, nil
}

// LoadPipeline reads pipeline configuration from environment variables
// (optionally .env). The processed-table input dir defaults to the extractor
// output dir when both are configured in one place.
func LoadPipeline() (Pipeline, error) {
	_ = godotenv.Load(".env")

	cfg := Pipeline{}

	cfg.InputDir = strings.TrimSpace(os.Getenv("VELOSTAT_PROCESSED_DIR"))
	if cfg.InputDir == "" {
		cfg.InputDir = strings.TrimSpace(os.Getenv("VELOSTAT_OUTPUT_DIR"))
	}
	if cfg.InputDir == "" {
		return cfg, errors.New("VELOSTAT_PROCESSED_DIR is required")
	}

	cfg.OutputDir = strings.TrimSpace(os.Getenv("VELOSTAT_RESULT_DIR"))
	if cfg.OutputDir == "" {
		cfg.OutputDir = cfg.InputDir
	}

	return cfg, nil
}

// LoadAPI reads API server configuration from environment variables
// (optionally .env).
func LoadAPI() (API, error) {
	_ = godotenv.Load(".env")

	cfg := API{Port: strings.TrimSpace(os.Getenv("API_PORT"))}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return cfg, fmt.Errorf("invalid API_PORT: %q", cfg.Port)
	}

	return cfg, nil
}
