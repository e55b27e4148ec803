package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadExtractor(t *testing.T) {
	t.Setenv("VELOSTAT_DATA_DIR", "/data/velostat")
	t.Setenv("VELOSTAT_OUTPUT_DIR", "/data/velostat/processed")
	t.Setenv("VELOSTAT_REGION", "VETURILO Poland")
	t.Setenv("VELOSTAT_WORKERS", "6")

	cfg, err := LoadExtractor()
	require.NoError(t, err)
	assert.Equal(t, "/data/velostat", cfg.DataDir)
	assert.Equal(t, "/data/velostat/processed", cfg.OutputDir)
	assert.Equal(t, "VETURILO Poland", cfg.Region)
	assert.Equal(t, 6, cfg.Workers)
}

func TestLoadExtractorRequiresDirs(t *testing.T) {
	t.Setenv("VELOSTAT_DATA_DIR", "")
	t.Setenv("VELOSTAT_OUTPUT_DIR", "")

	_, err := LoadExtractor()
	assert.Error(t, err)
}

func TestLoadExtractorRejectsBadWorkers(t *testing.T) {
	t.Setenv("VELOSTAT_DATA_DIR", "/data/velostat")
	t.Setenv("VELOSTAT_OUTPUT_DIR", "/out")
	t.Setenv("VELOSTAT_WORKERS", "zero")

	_, err := LoadExtractor()
	assert.Error(t, err)
}

func TestLoadPipelineFallsBackToOutputDir(t *testing.T) {
	t.Setenv("VELOSTAT_PROCESSED_DIR", "")
	t.Setenv("VELOSTAT_OUTPUT_DIR", "/data/velostat/processed")
	t.Setenv("VELOSTAT_RESULT_DIR", "")

	cfg, err := LoadPipeline()
	require.NoError(t, err)
	assert.Equal(t, "/data/velostat/processed", cfg.InputDir)
	assert.Equal(t, "/data/velostat/processed", cfg.OutputDir)
}

func TestLoadAPIDefaultsPort(t *testing.T) {
	t.Setenv("API_PORT", "")

	cfg, err := LoadAPI()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadAPIRejectsBadPort(t *testing.T) {
	t.Setenv("API_PORT", "not-a-port")

	_, err := LoadAPI()
	assert.Error(t, err)
}
