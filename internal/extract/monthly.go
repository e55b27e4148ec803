package extract

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/velostat/velostat_core/internal/models"
)

// MonthlyTablePath is where the unified station-status table for a month is
// written.
func MonthlyTablePath(outputDir, month string) string {
	return filepath.Join(outputDir, month+".csv.gz")
}

// MonthlyLogPath is where the processing-error log for a month is written.
func MonthlyLogPath(outputDir, month string) string {
	return filepath.Join(outputDir, month+".log")
}

// WriteMonthlyTable writes station records as gzipped CSV under the canonical
// column order. The file is replaced wholesale on every run.
func WriteMonthlyTable(path string, rows []models.StationRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)

	if err := w.Write(models.StationStatusColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			strconv.FormatInt(r.UID, 10),
			formatFloat(r.Lat),
			formatFloat(r.Lng),
			r.Name,
			r.Number,
			formatIntPtr(r.Bikes),
			formatIntPtr(r.BikeRacks),
			formatIntPtr(r.FreeRacks),
			r.PlaceType,
			strings.Join(r.BikeNumbers, ","),
			r.ObservedAt.Format(TimestampLayout),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to close gzip stream: %w", err)
	}
	return nil
}

// WriteProcessingLog writes the error-log table. The header row is always
// written, so a clean run still yields a log with the full schema.
func WriteProcessingLog(path string, entries []models.ProcessingError) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(models.ProcessingLogColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range entries {
		if err := w.Write([]string{e.Unit, string(e.Stage), e.Message}); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// ReadMonthlyTable reads a monthly station-status table back into records.
// Every canonical column must be present; a missing column means the file
// does not satisfy the schema contract and is a conversion failure. Rows with
// an unusable uid or timestamp are skipped with a warning.
func ReadMonthlyTable(path string) ([]models.StationRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var source io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		source = gz
	}

	csvReader := csv.NewReader(source)
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colMap := make(map[string]int)
	for i, col := range header {
		colMap[strings.TrimSpace(col)] = i
	}
	for _, col := range models.StationStatusColumns {
		if _, ok := colMap[col]; !ok {
			return nil, fmt.Errorf("table %s is missing required column %q", path, col)
		}
	}

	var rows []models.StationRecord
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Warning: skipping malformed row in %s: %v", path, err)
			continue
		}

		uid, err := strconv.ParseInt(getField(record, colMap, "uid"), 10, 64)
		if err != nil {
			log.Printf("Warning: skipping row with bad uid in %s: %v", path, err)
			continue
		}
		observedAt, err := time.ParseInLocation(TimestampLayout, getField(record, colMap, "dt"), time.Local)
		if err != nil {
			log.Printf("Warning: skipping row with bad dt in %s: %v", path, err)
			continue
		}

		lat, _ := strconv.ParseFloat(getField(record, colMap, "lat"), 64)
		lng, _ := strconv.ParseFloat(getField(record, colMap, "lng"), 64)

		rows = append(rows, models.StationRecord{
			UID:         uid,
			Lat:         lat,
			Lng:         lng,
			Name:        getField(record, colMap, "name"),
			Number:      getField(record, colMap, "number"),
			Bikes:       parseIntPtr(getField(record, colMap, "bikes")),
			BikeRacks:   parseIntPtr(getField(record, colMap, "bike_racks")),
			FreeRacks:   parseIntPtr(getField(record, colMap, "free_racks")),
			PlaceType:   getField(record, colMap, "place_type"),
			BikeNumbers: splitBikeNumbers(getField(record, colMap, "bike_numbers")),
			ObservedAt:  observedAt,
		})
	}

	return rows, nil
}

func getField(record []string, colMap map[string]int, fieldName string) string {
	if idx, ok := colMap[fieldName]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatIntPtr(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}

func parseIntPtr(s string) *int64 {
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
