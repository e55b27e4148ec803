package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/velostat/velostat_core/internal/config"
	"github.com/velostat/velostat_core/internal/extract"
)

func main() {
	dataDir := flag.String("data-dir", "", "Directory holding daily snapshot zip archives (overrides VELOSTAT_DATA_DIR)")
	outputDir := flag.String("output-dir", "", "Directory for monthly csv.gz tables and logs (overrides VELOSTAT_OUTPUT_DIR)")
	month := flag.String("month", "", "Process only this YYYYMM month (default: all months found)")
	region := flag.String("region", "", "Region name to extract (overrides VELOSTAT_REGION)")
	workers := flag.Int("workers", 0, "Worker pool size, one daily archive per worker (default: CPU count)")

	flag.Parse()

	cfg, err := loadConfig(*dataDir, *outputDir, *region, *workers)
	if err != nil {
		fmt.Println("Usage: velostat-extract --data-dir=<dir> --output-dir=<dir> [--month=YYYYMM] [--region=<name>] [--workers=N]")
		flag.PrintDefaults()
		log.Fatalf("Configuration error: %v", err)
	}

	if err := run(cfg, *month); err != nil {
		log.Fatalf("Extraction failed: %v", err)
	}
}

func loadConfig(dataDir, outputDir, region string, workers int) (config.Extractor, error) {
	// Flags take precedence over the environment so one-off runs don't need
	// env juggling.
	if dataDir != "" {
		os.Setenv("VELOSTAT_DATA_DIR", dataDir)
	}
	if outputDir != "" {
		os.Setenv("VELOSTAT_OUTPUT_DIR", outputDir)
	}
	if region != "" {
		os.Setenv("VELOSTAT_REGION", region)
	}

	cfg, err := config.LoadExtractor()
	if err != nil {
		return cfg, err
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if cfg.Region == "" {
		cfg.Region = extract.DefaultRegion
	}
	return cfg, nil
}

func run(cfg config.Extractor, only string) error {
	months, err := extract.ListMonths(cfg.DataDir)
	if err != nil {
		return err
	}
	if only != "" {
		months = []string{only}
	}
	if len(months) == 0 {
		return fmt.Errorf("no snapshot archives found in %s", cfg.DataDir)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	log.Printf("Extracting %d month(s) with %d workers (region %q)", len(months), cfg.Workers, cfg.Region)

	for _, month := range months {
		start := time.Now()
		result, err := extract.ProcessMonth(cfg.DataDir, month, cfg.Region, cfg.Workers)
		if err != nil {
			return fmt.Errorf("month %s: %w", month, err)
		}

		tablePath := extract.MonthlyTablePath(cfg.OutputDir, month)
		if err := extract.WriteMonthlyTable(tablePath, result.Rows); err != nil {
			return fmt.Errorf("month %s: %w", month, err)
		}
		logPath := extract.MonthlyLogPath(cfg.OutputDir, month)
		if err := extract.WriteProcessingLog(logPath, result.Log); err != nil {
			return fmt.Errorf("month %s: %w", month, err)
		}

		log.Printf("Month %s: %d rows, %d failed snapshots, %s", month, len(result.Rows), len(result.Log), time.Since(start).Round(time.Millisecond))
	}

	log.Println("Extraction completed")
	return nil
}
