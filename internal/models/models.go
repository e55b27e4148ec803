package models

import "time"

// NoStation is the sentinel station identifier meaning "bike not found docked
// anywhere in this observation". It fills the gaps left by the timeline
// cross-product padding and never refers to a genuine station.
const NoStation int64 = -1

// StationStatusColumns is the canonical ordered schema of the unified
// per-snapshot station-status table. Monthly output files always carry exactly
// these columns; a table missing any of them cannot be converted.
var StationStatusColumns = []string{
	"uid",
	"lat",
	"lng",
	"name",
	"number",
	"bikes",
	"bike_racks",
	"free_racks",
	"place_type",
	"bike_numbers",
	"dt",
}

// StationRecord is one station's status inside one snapshot.
// Numeric count fields are nullable: non-numeric source tokens coerce to nil
// rather than failing the record.
type StationRecord struct {
	UID         int64
	Lat         float64
	Lng         float64
	Name        string
	Number      string
	Bikes       *int64
	BikeRacks   *int64
	FreeRacks   *int64
	PlaceType   string
	BikeNumbers []string // raw bike identifier tokens as reported, may contain garbage
	ObservedAt  time.Time
}

// Snapshot is one timestamped capture of all station statuses.
type Snapshot struct {
	ObservedAt time.Time
	Stations   []StationRecord
}

// PresenceRecord is one (bike, time, station-or-none) fact. Bike is a genuine
// positive identifier or a synthesized negative virtual identifier standing in
// for "no real bike" at an empty station.
type PresenceRecord struct {
	Bike       int64
	ObservedAt time.Time
	Station    int64
}

// RentalEvent is an inferred departure of a real bike from a genuine station
// between two consecutive observations. The timestamp is the departure
// snapshot's observation time.
type RentalEvent struct {
	UID        int64
	DepartedAt time.Time
}

// HourlyRentalCount is the number of rental events departing from a station
// within one wall-clock hour. Hours with no events are not represented.
type HourlyRentalCount struct {
	UID       int64     `json:"uid"`
	Hour      time.Time `json:"dt"`
	RentCount int       `json:"rent_count"`
}

// HourlyAvailability is the per-station per-hour availability aggregate: the
// first observed rack count in the hour and the rounded mean of available
// bikes across the hour's observations. Either field is nil when no numeric
// observation existed.
type HourlyAvailability struct {
	UID       int64     `json:"uid"`
	Hour      time.Time `json:"dt"`
	BikeRacks *int64    `json:"bike_racks"`
	MeanBikes *float64  `json:"mean_bikes"`
}

// Stage identifies the processing step at which a snapshot failed.
type Stage string

const (
	StageTimestamp Stage = "extract_timestamp"
	StageExtract   Stage = "extract_payload"
	StageConvert   Stage = "convert_records"
	StageRead      Stage = "read_table"
)

// ProcessingError is one structured error-log entry: which unit failed, at
// which stage, and why. Log tables always carry this schema even when empty.
type ProcessingError struct {
	Unit    string
	Stage   Stage
	Message string
}

// ProcessingLogColumns is the fixed schema of the error-log table.
var ProcessingLogColumns = []string{"fname", "stage", "error"}

// FloorHour truncates a timestamp to the start of its wall-clock hour.
// Timestamps are naive local time throughout; no zone conversion happens.
func FloorHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
