package extract

import (
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/velostat/velostat_core/internal/models"
)

// DefaultRegion is the network whose stations are extracted from the
// multi-region payload embedded in each snapshot page.
const DefaultRegion = "VETURILO Poland"

// TimestampLayout is how observation times are encoded in snapshot file names
// and in the dt column of monthly tables.
const (
	fileTimestampLayout = "20060102_150405"
	TimestampLayout     = "2006-01-02 15:04:05"
)

var placesPattern = regexp.MustCompile(`var NEXTBIKE_PLACES_DB = '(.*)';`)

// Result is the outcome of processing one snapshot inside an archive: either
// a set of station records or a structured failure naming the unit and stage.
// Exactly one of Records and Failure is set.
type Result struct {
	Unit    string
	Records []models.StationRecord
	Failure *models.ProcessingError
}

// OK reports whether the snapshot was processed successfully.
func (r Result) OK() bool { return r.Failure == nil }

func success(unit string, records []models.StationRecord) Result {
	return Result{Unit: unit, Records: records}
}

func failure(unit string, stage models.Stage, err error) Result {
	return Result{Unit: unit, Failure: &models.ProcessingError{Unit: unit, Stage: stage, Message: err.Error()}}
}

// ParseTimestamp recovers the observation time from a snapshot file name
// shaped YYYYMMDD_HHMMSS[...]. Times are naive local throughout.
func ParseTimestamp(name string) (time.Time, error) {
	base := filepath.Base(name)
	if len(base) < len(fileTimestampLayout) {
		return time.Time{}, fmt.Errorf("file name %q too short for a timestamp", base)
	}
	ts, err := time.ParseInLocation(fileTimestampLayout, base[:len(fileTimestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("no timestamp in file name %q: %w", base, err)
	}
	return ts, nil
}

// ExtractPayload pulls the station JSON out of a raw snapshot HTML page. The
// payload sits in a single-quoted JS string literal, so quote escapes added
// by the crawler have to be undone before the string is valid JSON.
func ExtractPayload(html string) (string, error) {
	m := placesPattern.FindStringSubmatch(html)
	if m == nil {
		return "", fmt.Errorf("no places payload in page")
	}
	return strings.ReplaceAll(m[1], `\'`, "'"), nil
}

type regionPayload struct {
	RegionInfo struct {
		Name string `json:"name"`
	} `json:"region_info"`
	Places []map[string]any `json:"places"`
}

// ConvertSnapshot turns an extracted JSON payload into station records for
// one region. The payload lists every affiliated network; a region that is
// absent is a conversion failure for the whole snapshot. Individual places
// without a usable uid are skipped with a warning, not fatal.
func ConvertSnapshot(payload, region string, observedAt time.Time) ([]models.StationRecord, error) {
	var regions []regionPayload
	if err := json.Unmarshal([]byte(payload), &regions); err != nil {
		return nil, fmt.Errorf("invalid places payload: %w", err)
	}

	var places []map[string]any
	found := false
	for _, r := range regions {
		if r.RegionInfo.Name == region {
			places = r.Places
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("region %q not present in payload", region)
	}

	records := make([]models.StationRecord, 0, len(places))
	for _, place := range places {
		uid, ok := asInt64(place["uid"])
		if !ok {
			log.Printf("Warning: skipping place without usable uid: %v", place["uid"])
			continue
		}

		lat, _ := asFloat64(place["lat"])
		lng, _ := asFloat64(place["lng"])
		rec := models.StationRecord{
			UID:         uid,
			Lat:         lat,
			Lng:         lng,
			Name:        asString(place["name"]),
			Number:      asString(place["number"]),
			Bikes:       asInt64Ptr(place["bikes"]),
			BikeRacks:   asInt64Ptr(place["bike_racks"]),
			FreeRacks:   asInt64Ptr(place["free_racks"]),
			PlaceType:   asString(place["place_type"]),
			BikeNumbers: splitBikeNumbers(asString(place["bike_numbers"])),
			ObservedAt:  observedAt,
		}
		records = append(records, rec)
	}

	return records, nil
}

// ProcessSnapshot runs the per-snapshot stages (timestamp, payload
// extraction, conversion) and wraps the outcome in a Result. A failure at any
// stage is recorded against this unit only.
func ProcessSnapshot(name string, content []byte, region string) Result {
	observedAt, err := ParseTimestamp(name)
	if err != nil {
		return failure(name, models.StageTimestamp, err)
	}

	payload, err := ExtractPayload(string(content))
	if err != nil {
		return failure(name, models.StageExtract, err)
	}

	records, err := ConvertSnapshot(payload, region, observedAt)
	if err != nil {
		return failure(name, models.StageConvert, err)
	}

	return success(name, records)
}

// Coercion helpers. Source fields arrive as JSON numbers or strings
// interchangeably; anything unparseable coerces to the missing value.

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	f, ok := asFloat64(v)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

func asInt64Ptr(v any) *int64 {
	n, ok := asInt64(v)
	if !ok {
		return nil
	}
	return &n
}

func splitBikeNumbers(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}
