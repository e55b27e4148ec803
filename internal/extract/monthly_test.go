package extract

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velostat/velostat_core/internal/models"
)

func intPtr(n int64) *int64 { return &n }

func sampleRows() []models.StationRecord {
	observedAt := time.Date(2019, 8, 22, 10, 15, 2, 0, time.Local)
	return []models.StationRecord{
		{
			UID:         1234,
			Lat:         52.2319,
			Lng:         21.0067,
			Name:        "Metro Centrum",
			Number:      "6428",
			Bikes:       intPtr(2),
			BikeRacks:   intPtr(18),
			FreeRacks:   intPtr(16),
			PlaceType:   "0",
			BikeNumbers: []string{"65742", "65123"},
			ObservedAt:  observedAt,
		},
		{
			UID:        5678,
			Lat:        52.2297,
			Lng:        21.0122,
			Name:       "Rondo",
			Number:     "6501",
			Bikes:      intPtr(0),
			BikeRacks:  intPtr(12),
			FreeRacks:  intPtr(12),
			PlaceType:  "0",
			ObservedAt: observedAt,
		},
	}
}

func TestMonthlyTableRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := MonthlyTablePath(dir, "201908")

	require.NoError(t, WriteMonthlyTable(path, sampleRows()))

	rows, err := ReadMonthlyTable(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), rows)
}

func TestMonthlyTableOverwritten(t *testing.T) {
	dir := t.TempDir()
	path := MonthlyTablePath(dir, "201908")

	require.NoError(t, WriteMonthlyTable(path, sampleRows()))
	require.NoError(t, WriteMonthlyTable(path, sampleRows()[:1]))

	rows, err := ReadMonthlyTable(path)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "each run replaces the month's output")
}

func TestReadMonthlyTableMissingColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "201908.csv")
	require.NoError(t, os.WriteFile(path, []byte("uid,dt\n1234,2019-08-22 10:15:02\n"), 0o644))

	_, err := ReadMonthlyTable(path)
	assert.ErrorContains(t, err, "missing required column")
}

func TestReadMonthlyTableSkipsBadRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "201908.csv")
	content := "uid,lat,lng,name,number,bikes,bike_racks,free_racks,place_type,bike_numbers,dt\n" +
		"notanumber,52.0,21.0,X,1,1,1,1,0,,2019-08-22 10:15:02\n" +
		"1234,52.0,21.0,X,1,1,1,1,0,7,2019-08-22 10:15:02\n" +
		"5678,52.0,21.0,X,1,1,1,1,0,7,not-a-date\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rows, err := ReadMonthlyTable(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1234), rows[0].UID)
}

func TestWriteProcessingLogAlwaysHasHeader(t *testing.T) {
	dir := t.TempDir()
	path := MonthlyLogPath(dir, "201908")

	require.NoError(t, WriteProcessingLog(path, nil))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fname,stage,error\n", string(content), "empty log still carries the schema")
}

func TestWriteProcessingLogEntries(t *testing.T) {
	dir := t.TempDir()
	path := MonthlyLogPath(dir, "201908")

	entries := []models.ProcessingError{
		{Unit: "20190822_101000.html", Stage: models.StageExtract, Message: "no places payload in page"},
	}
	require.NoError(t, WriteProcessingLog(path, entries))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "20190822_101000.html,extract_payload,no places payload in page")
}
