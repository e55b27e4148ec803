package features

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/velostat/velostat_core/internal/models"
)

// Window is an offset rolling-sum window over hourly rental counts: the sum
// of rent_count between MaxH and MinH hours before each observation.
type Window struct {
	MaxH int
	MinH int
}

// Column is the name of the derived column, e.g. rent_count_48_24.
func (w Window) Column() string {
	return fmt.Sprintf("rent_count_%d_%d", w.MaxH, w.MinH)
}

// DefaultWindows is the feature set the demand models are fitted on:
// yesterday's demand, the same hour yesterday, and the same day last week.
var DefaultWindows = []Window{{48, 24}, {25, 24}, {168, 144}}

// Row is one hourly rental observation enriched with calendar features and
// rolling sums, keyed the same way as the source table.
type Row struct {
	UID       int64
	Hour      time.Time
	RentCount int
	Month     int
	Weekday   int
	HourOfDay int
	Week      int
	Rolling   map[string]int
}

// BuildRows derives calendar features from an hourly rental table and applies
// the given rolling windows. Input order does not matter; output is sorted by
// (station, hour).
func BuildRows(counts []models.HourlyRentalCount, windows []Window) []Row {
	rows := make([]Row, 0, len(counts))
	for _, c := range counts {
		_, week := c.Hour.ISOWeek()
		rows = append(rows, Row{
			UID:       c.UID,
			Hour:      c.Hour,
			RentCount: c.RentCount,
			Month:     int(c.Hour.Month()),
			Weekday:   int(c.Hour.Weekday()),
			HourOfDay: c.Hour.Hour(),
			Week:      week,
			Rolling:   make(map[string]int, len(windows)),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].UID != rows[j].UID {
			return rows[i].UID < rows[j].UID
		}
		return rows[i].Hour.Before(rows[j].Hour)
	})

	for _, w := range windows {
		addRollingSum(rows, w)
	}
	return rows
}

// addRollingSum fills one window column. For a row at time t the value is the
// total rent_count of the station's rows with hour in (t-MaxH, t-MinH]; hours
// absent from the table contribute zero, matching the sparse source table.
func addRollingSum(rows []Row, w Window) {
	start := 0
	for end := 0; end < len(rows); end++ {
		if rows[end].UID != rows[start].UID {
			fillStation(rows[start:end], w)
			start = end
		}
	}
	fillStation(rows[start:], w)
}

func fillStation(rows []Row, w Window) {
	maxD := time.Duration(w.MaxH) * time.Hour
	minD := time.Duration(w.MinH) * time.Hour

	// lo/hi bracket the rows inside (t-MaxH, t-MinH]; both only move forward
	// because rows are hour-sorted.
	lo, hi, sum := 0, 0, 0
	for i := range rows {
		t := rows[i].Hour
		for hi < len(rows) && !rows[hi].Hour.After(t.Add(-minD)) {
			sum += rows[hi].RentCount
			hi++
		}
		for lo < hi && !rows[lo].Hour.After(t.Add(-maxD)) {
			sum -= rows[lo].RentCount
			lo++
		}
		rows[i].Rolling[w.Column()] = sum
	}
}

// WriteCSV writes feature rows for the downstream modeling stage. Columns:
// uid, dt, rent_count, month, dayofweek, hour, weeknum, then one column per
// window in the given order.
func WriteCSV(path string, rows []Row, windows []Window) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"uid", "dt", "rent_count", "month", "dayofweek", "hour", "weeknum"}
	for _, win := range windows {
		header = append(header, win.Column())
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			strconv.FormatInt(r.UID, 10),
			r.Hour.Format("2006-01-02 15:04:05"),
			strconv.Itoa(r.RentCount),
			strconv.Itoa(r.Month),
			strconv.Itoa(r.Weekday),
			strconv.Itoa(r.HourOfDay),
			strconv.Itoa(r.Week),
		}
		for _, win := range windows {
			record = append(record, strconv.Itoa(r.Rolling[win.Column()]))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
