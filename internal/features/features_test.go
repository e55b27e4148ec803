package features

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velostat/velostat_core/internal/models"
)

func hour(day, h int) time.Time {
	return time.Date(2019, 8, day, h, 0, 0, 0, time.Local)
}

func TestBuildRowsCalendarFeatures(t *testing.T) {
	counts := []models.HourlyRentalCount{
		{UID: 100, Hour: hour(22, 10), RentCount: 3}, // Thursday
	}

	rows := BuildRows(counts, nil)

	require.Len(t, rows, 1)
	assert.Equal(t, 8, rows[0].Month)
	assert.Equal(t, int(time.Thursday), rows[0].Weekday)
	assert.Equal(t, 10, rows[0].HourOfDay)
	assert.Equal(t, 34, rows[0].Week)
	assert.Equal(t, 3, rows[0].RentCount)
}

func TestRollingSumWindow(t *testing.T) {
	// Station 100: one rental every hour from 00:00 to 05:00 on the 22nd.
	var counts []models.HourlyRentalCount
	for h := 0; h <= 5; h++ {
		counts = append(counts, models.HourlyRentalCount{UID: 100, Hour: hour(22, h), RentCount: 1})
	}

	w := Window{MaxH: 3, MinH: 1}
	rows := BuildRows(counts, []Window{w})

	// At 05:00 the window (t-3h, t-1h] covers 03:00 and 04:00.
	assert.Equal(t, 2, rows[5].Rolling[w.Column()])
	// At 01:00 only 00:00 falls inside (t-3h, t-1h].
	assert.Equal(t, 1, rows[1].Rolling[w.Column()])
	// At 00:00 nothing precedes.
	assert.Equal(t, 0, rows[0].Rolling[w.Column()])
}

func TestRollingSumSparseHours(t *testing.T) {
	// Absent hours count as zero, not as gaps that shift the window.
	counts := []models.HourlyRentalCount{
		{UID: 100, Hour: hour(22, 0), RentCount: 5},
		{UID: 100, Hour: hour(22, 10), RentCount: 2},
	}

	w := Window{MaxH: 24, MinH: 1}
	rows := BuildRows(counts, []Window{w})

	assert.Equal(t, 5, rows[1].Rolling[w.Column()], "only the 00:00 row is inside the window")
}

func TestRollingSumPerStation(t *testing.T) {
	counts := []models.HourlyRentalCount{
		{UID: 100, Hour: hour(22, 0), RentCount: 5},
		{UID: 100, Hour: hour(22, 1), RentCount: 1},
		{UID: 200, Hour: hour(22, 1), RentCount: 9},
	}

	w := Window{MaxH: 2, MinH: 1}
	rows := BuildRows(counts, []Window{w})

	require.Len(t, rows, 3)
	assert.Equal(t, 5, rows[1].Rolling[w.Column()])
	assert.Equal(t, 0, rows[2].Rolling[w.Column()], "windows never cross stations")
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.csv")

	counts := []models.HourlyRentalCount{
		{UID: 100, Hour: hour(22, 10), RentCount: 3},
	}
	windows := []Window{{48, 24}, {25, 24}}
	rows := BuildRows(counts, windows)

	require.NoError(t, WriteCSV(path, rows, windows))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "uid,dt,rent_count,month,dayofweek,hour,weeknum,rent_count_48_24,rent_count_25_24", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "100,2019-08-22 10:00:00,3,"))
}
