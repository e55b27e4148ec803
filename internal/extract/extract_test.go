package extract

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velostat/velostat_core/internal/models"
)

const testRegion = "VETURILO Poland"

func snapshotPage(payload string) string {
	return fmt.Sprintf("<html><head></head><body><script>var NEXTBIKE_PLACES_DB = '%s';</script></body></html>", payload)
}

func testPayload() string {
	return `[` +
		`{"region_info":{"name":"Other Network"},"places":[{"uid":9,"bike_numbers":"1"}]},` +
		`{"region_info":{"name":"VETURILO Poland"},"places":[` +
		`{"uid":1234,"lat":52.2319,"lng":21.0067,"name":"Metro Centrum","number":"6428","bikes":"2","bike_racks":18,"free_racks":"16","place_type":"0","bike_numbers":"65742,65123"},` +
		`{"uid":5678,"lat":52.2297,"lng":21.0122,"name":"Rondo","number":"6501","bikes":0,"bike_racks":12,"free_racks":12,"place_type":"0","bike_numbers":""}` +
		`]}]`
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		fname   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "plain snapshot name",
			fname: "20190822_101502.html",
			want:  time.Date(2019, 8, 22, 10, 15, 2, 0, time.Local),
		},
		{
			name:  "name inside directory",
			fname: "20190822/20190822_101502.html",
			want:  time.Date(2019, 8, 22, 10, 15, 2, 0, time.Local),
		},
		{name: "too short", fname: "index.html", wantErr: true},
		{name: "not a timestamp", fname: "stationdump.html.gz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.fname)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractPayload(t *testing.T) {
	payload, err := ExtractPayload(snapshotPage(testPayload()))
	require.NoError(t, err)
	assert.Equal(t, testPayload(), payload)
}

func TestExtractPayloadUnescapesQuotes(t *testing.T) {
	page := snapshotPage(`[{"name":"Gaulle\'a"}]`)
	payload, err := ExtractPayload(page)
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"Gaulle'a"}]`, payload)
}

func TestExtractPayloadMissing(t *testing.T) {
	_, err := ExtractPayload("<html><body>maintenance</body></html>")
	assert.Error(t, err)
}

func TestConvertSnapshot(t *testing.T) {
	observedAt := time.Date(2019, 8, 22, 10, 15, 2, 0, time.Local)

	records, err := ConvertSnapshot(testPayload(), testRegion, observedAt)
	require.NoError(t, err)
	require.Len(t, records, 2, "only the selected region's places")

	first := records[0]
	assert.Equal(t, int64(1234), first.UID)
	assert.Equal(t, 52.2319, first.Lat)
	assert.Equal(t, "Metro Centrum", first.Name)
	assert.Equal(t, "6428", first.Number)
	require.NotNil(t, first.Bikes)
	assert.Equal(t, int64(2), *first.Bikes, "string-typed counts coerce")
	require.NotNil(t, first.BikeRacks)
	assert.Equal(t, int64(18), *first.BikeRacks)
	assert.Equal(t, []string{"65742", "65123"}, first.BikeNumbers)
	assert.Equal(t, observedAt, first.ObservedAt)

	second := records[1]
	assert.Empty(t, second.BikeNumbers)
	require.NotNil(t, second.Bikes)
	assert.Equal(t, int64(0), *second.Bikes)
}

func TestConvertSnapshotMissingRegion(t *testing.T) {
	_, err := ConvertSnapshot(testPayload(), "Nextbike Berlin", time.Now())
	assert.ErrorContains(t, err, "Nextbike Berlin")
}

func TestConvertSnapshotBadJSON(t *testing.T) {
	_, err := ConvertSnapshot("{not json", testRegion, time.Now())
	assert.Error(t, err)
}

func TestConvertSnapshotSkipsPlaceWithoutUID(t *testing.T) {
	payload := `[{"region_info":{"name":"VETURILO Poland"},"places":[` +
		`{"name":"broken"},` +
		`{"uid":"abc","name":"also broken"},` +
		`{"uid":42,"bike_numbers":"7"}]}]`

	records, err := ConvertSnapshot(payload, testRegion, time.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(42), records[0].UID)
}

func TestProcessSnapshotStages(t *testing.T) {
	tests := []struct {
		name      string
		fname     string
		content   string
		wantStage models.Stage
	}{
		{
			name:      "bad file name",
			fname:     "readme.txt",
			content:   snapshotPage(testPayload()),
			wantStage: models.StageTimestamp,
		},
		{
			name:      "no payload in page",
			fname:     "20190822_101502.html",
			content:   "<html></html>",
			wantStage: models.StageExtract,
		},
		{
			name:      "region missing",
			fname:     "20190822_101502.html",
			content:   snapshotPage(`[{"region_info":{"name":"Elsewhere"},"places":[]}]`),
			wantStage: models.StageConvert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ProcessSnapshot(tt.fname, []byte(tt.content), testRegion)
			require.False(t, res.OK())
			assert.Equal(t, tt.fname, res.Failure.Unit)
			assert.Equal(t, tt.wantStage, res.Failure.Stage)
			assert.NotEmpty(t, res.Failure.Message)
		})
	}
}

func TestProcessSnapshotSuccess(t *testing.T) {
	res := ProcessSnapshot("20190822_101502.html", []byte(snapshotPage(testPayload())), testRegion)

	require.True(t, res.OK())
	assert.Nil(t, res.Failure)
	assert.Len(t, res.Records, 2)
}
