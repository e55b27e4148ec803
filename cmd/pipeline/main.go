package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/velostat/velostat_core/internal/cache"
	"github.com/velostat/velostat_core/internal/config"
	"github.com/velostat/velostat_core/internal/db"
	"github.com/velostat/velostat_core/internal/extract"
	"github.com/velostat/velostat_core/internal/features"
	"github.com/velostat/velostat_core/internal/models"
	"github.com/velostat/velostat_core/internal/rentals"
)

func main() {
	inputDir := flag.String("input-dir", "", "Directory holding monthly station-status tables (overrides VELOSTAT_PROCESSED_DIR)")
	recompute := flag.Bool("recompute", false, "Recompute even when cached results exist")
	withFeatures := flag.Bool("features", false, "Also derive rolling-sum feature rows and write them as CSV")
	persist := flag.Bool("persist", true, "Write the hourly tables to Postgres")

	flag.Parse()

	if *inputDir != "" {
		os.Setenv("VELOSTAT_PROCESSED_DIR", *inputDir)
	}
	cfg, err := config.LoadPipeline()
	if err != nil {
		fmt.Println("Usage: velostat-pipeline [--input-dir=<dir>] [--recompute] [--features] [--persist=false]")
		flag.PrintDefaults()
		log.Fatalf("Configuration error: %v", err)
	}
	cfg.Recompute = *recompute

	if err := run(cfg, *withFeatures, *persist); err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
}

func run(cfg config.Pipeline, withFeatures, persist bool) error {
	ctx := context.Background()

	tables, err := listMonthlyTables(cfg.InputDir)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return fmt.Errorf("no monthly tables found in %s", cfg.InputDir)
	}
	window := windowKey(tables)
	log.Printf("Processing window %s (%d monthly tables)", window, len(tables))

	// The cache collaborator is optional; a dead Redis degrades to recompute.
	cacheClient, err := cache.New(ctx, cache.LoadConfigFromEnv())
	if err != nil {
		log.Printf("Warning: cache unavailable, recomputing: %v", err)
		cacheClient = nil
	} else {
		defer cacheClient.Close()
	}

	rentalRows, availRows, stationRows, err := computeOrLoad(ctx, cfg, cacheClient, tables, window)
	if err != nil {
		return err
	}
	log.Printf("Hourly rentals: %d rows; hourly availability: %d rows", len(rentalRows), len(availRows))

	if persist {
		pool, err := db.New(ctx, db.LoadConfigFromEnv())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		if err := db.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		if err := db.UpsertStations(ctx, pool, stationRows); err != nil {
			return err
		}
		if err := db.UpsertHourlyRentals(ctx, pool, rentalRows); err != nil {
			return err
		}
		if err := db.UpsertHourlyAvailability(ctx, pool, availRows); err != nil {
			return err
		}
	}

	if withFeatures {
		rows := features.BuildRows(rentalRows, features.DefaultWindows)
		path := filepath.Join(cfg.OutputDir, fmt.Sprintf("features_%s.csv", window))
		if err := features.WriteCSV(path, rows, features.DefaultWindows); err != nil {
			return err
		}
		log.Printf("Wrote %d feature rows to %s", len(rows), path)
	}

	log.Println("Pipeline completed")
	return nil
}

// computeOrLoad returns the hourly tables for the window, from cache when
// allowed and present, otherwise by running the inference over every monthly
// table and concatenating. The station dimension is only populated on a real
// compute; cached runs skip the station upsert input.
func computeOrLoad(ctx context.Context, cfg config.Pipeline, cacheClient *redis.Client, tables []string, window string) ([]models.HourlyRentalCount, []models.HourlyAvailability, []models.StationRecord, error) {
	cacheCfg := cache.LoadConfigFromEnv()

	if cacheClient != nil && !cfg.Recompute {
		rentalRows, err := cache.GetHourlyRentals(ctx, cacheClient, cache.RentalsKey(window))
		if err != nil {
			log.Printf("Warning: cache read failed: %v", err)
		}
		availRows, err := cache.GetHourlyAvailability(ctx, cacheClient, cache.AvailabilityKey(window))
		if err != nil {
			log.Printf("Warning: cache read failed: %v", err)
		}
		if rentalRows != nil && availRows != nil {
			log.Printf("Using cached tables for window %s", window)
			return rentalRows, availRows, nil, nil
		}
	}

	var rentalRows []models.HourlyRentalCount
	var availRows []models.HourlyAvailability
	var stationRows []models.StationRecord

	for _, path := range tables {
		records, err := extract.ReadMonthlyTable(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		rentalRows = append(rentalRows, rentals.HourlyFromRecords(records)...)
		availRows = append(availRows, rentals.AggregateAvailability(records)...)
		stationRows = append(stationRows, records...)
		log.Printf("Processed %s (%d records)", filepath.Base(path), len(records))
	}

	if cacheClient != nil {
		if err := cache.SetHourlyRentals(ctx, cacheClient, cache.RentalsKey(window), rentalRows, cacheCfg.TTL); err != nil {
			log.Printf("Warning: cache write failed: %v", err)
		}
		if err := cache.SetHourlyAvailability(ctx, cacheClient, cache.AvailabilityKey(window), availRows, cacheCfg.TTL); err != nil {
			log.Printf("Warning: cache write failed: %v", err)
		}
	}

	return rentalRows, availRows, stationRows, nil
}

func listMonthlyTables(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list input dir: %w", err)
	}

	var tables []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv.gz") {
			continue
		}
		tables = append(tables, filepath.Join(dir, e.Name()))
	}
	sort.Strings(tables)
	return tables, nil
}

// windowKey identifies the processing window by its month range, so cached
// tables are keyed by what went into them.
func windowKey(tables []string) string {
	month := func(path string) string {
		return strings.TrimSuffix(filepath.Base(path), ".csv.gz")
	}
	first, last := month(tables[0]), month(tables[len(tables)-1])
	if first == last {
		return first
	}
	return first + "-" + last
}
