package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velostat/velostat_core/internal/models"
)

// EnsureSchema creates the output tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS station (
			uid BIGINT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			number TEXT NOT NULL DEFAULT '',
			lat DOUBLE PRECISION NOT NULL DEFAULT 0,
			lng DOUBLE PRECISION NOT NULL DEFAULT 0,
			place_type TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS hourly_rentals (
			uid BIGINT NOT NULL,
			dt TIMESTAMP NOT NULL,
			rent_count INTEGER NOT NULL,
			PRIMARY KEY (uid, dt)
		)`,
		`CREATE TABLE IF NOT EXISTS hourly_availability (
			uid BIGINT NOT NULL,
			dt TIMESTAMP NOT NULL,
			bike_racks BIGINT,
			mean_bikes DOUBLE PRECISION,
			PRIMARY KEY (uid, dt)
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertStations writes the station dimension rows. Later observations of the
// same uid win, so calling this with a fresh window's records keeps names and
// coordinates current.
func UpsertStations(ctx context.Context, pool *pgxpool.Pool, records []models.StationRecord) error {
	latest := make(map[int64]models.StationRecord)
	for _, r := range records {
		if prev, ok := latest[r.UID]; !ok || r.ObservedAt.After(prev.ObservedAt) {
			latest[r.UID] = r
		}
	}

	batch := &pgx.Batch{}
	for _, r := range latest {
		batch.Queue(`
			INSERT INTO station (uid, name, number, lat, lng, place_type)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (uid) DO UPDATE
			SET name = EXCLUDED.name,
			    number = EXCLUDED.number,
			    lat = EXCLUDED.lat,
			    lng = EXCLUDED.lng,
			    place_type = EXCLUDED.place_type
		`, r.UID, r.Name, r.Number, r.Lat, r.Lng, r.PlaceType)
	}

	if err := sendBatch(ctx, pool, batch); err != nil {
		return fmt.Errorf("failed to upsert stations: %w", err)
	}
	log.Printf("Upserted %d stations", len(latest))
	return nil
}

// UpsertHourlyRentals writes the hourly rental table for a window, replacing
// any previous values for the same (uid, hour) keys.
func UpsertHourlyRentals(ctx context.Context, pool *pgxpool.Pool, rows []models.HourlyRentalCount) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO hourly_rentals (uid, dt, rent_count)
			VALUES ($1, $2, $3)
			ON CONFLICT (uid, dt) DO UPDATE
			SET rent_count = EXCLUDED.rent_count
		`, row.UID, row.Hour, row.RentCount)
		if batch.Len() >= 1000 {
			if err := sendBatch(ctx, pool, batch); err != nil {
				return fmt.Errorf("failed to upsert hourly rentals: %w", err)
			}
			batch = &pgx.Batch{}
		}
	}
	if err := sendBatch(ctx, pool, batch); err != nil {
		return fmt.Errorf("failed to upsert hourly rentals: %w", err)
	}

	log.Printf("Upserted %d hourly rental rows", len(rows))
	return nil
}

// UpsertHourlyAvailability writes the hourly availability table for a window.
func UpsertHourlyAvailability(ctx context.Context, pool *pgxpool.Pool, rows []models.HourlyAvailability) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO hourly_availability (uid, dt, bike_racks, mean_bikes)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (uid, dt) DO UPDATE
			SET bike_racks = EXCLUDED.bike_racks,
			    mean_bikes = EXCLUDED.mean_bikes
		`, row.UID, row.Hour, row.BikeRacks, row.MeanBikes)
		if batch.Len() >= 1000 {
			if err := sendBatch(ctx, pool, batch); err != nil {
				return fmt.Errorf("failed to upsert hourly availability: %w", err)
			}
			batch = &pgx.Batch{}
		}
	}
	if err := sendBatch(ctx, pool, batch); err != nil {
		return fmt.Errorf("failed to upsert hourly availability: %w", err)
	}

	log.Printf("Upserted %d hourly availability rows", len(rows))
	return nil
}

func sendBatch(ctx context.Context, pool *pgxpool.Pool, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return nil
}

// Station is one row of the station dimension as served by the API.
type Station struct {
	UID       int64   `json:"uid"`
	Name      string  `json:"name"`
	Number    string  `json:"number"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	PlaceType string  `json:"place_type"`
}

// ListStations returns all known stations ordered by uid.
func ListStations(ctx context.Context, pool *pgxpool.Pool) ([]Station, error) {
	rows, err := pool.Query(ctx, `
		SELECT uid, name, number, lat, lng, place_type
		FROM station
		ORDER BY uid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var stations []Station
	for rows.Next() {
		var s Station
		if err := rows.Scan(&s.UID, &s.Name, &s.Number, &s.Lat, &s.Lng, &s.PlaceType); err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// QueryHourlyRentals returns a station's rental counts within [from, to],
// ordered by hour. Hours absent from the table had zero rentals.
func QueryHourlyRentals(ctx context.Context, pool *pgxpool.Pool, uid int64, from, to time.Time) ([]models.HourlyRentalCount, error) {
	rows, err := pool.Query(ctx, `
		SELECT uid, dt, rent_count
		FROM hourly_rentals
		WHERE uid = $1 AND dt BETWEEN $2 AND $3
		ORDER BY dt
	`, uid, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly rentals: %w", err)
	}
	defer rows.Close()

	var counts []models.HourlyRentalCount
	for rows.Next() {
		var c models.HourlyRentalCount
		if err := rows.Scan(&c.UID, &c.Hour, &c.RentCount); err != nil {
			return nil, fmt.Errorf("failed to scan hourly rental: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// QueryRentalsForHour returns every station's rental count for one hour,
// ordered by uid.
func QueryRentalsForHour(ctx context.Context, pool *pgxpool.Pool, hour time.Time) ([]models.HourlyRentalCount, error) {
	rows, err := pool.Query(ctx, `
		SELECT uid, dt, rent_count
		FROM hourly_rentals
		WHERE dt = $1
		ORDER BY uid
	`, hour)
	if err != nil {
		return nil, fmt.Errorf("failed to query rentals for hour: %w", err)
	}
	defer rows.Close()

	var counts []models.HourlyRentalCount
	for rows.Next() {
		var c models.HourlyRentalCount
		if err := rows.Scan(&c.UID, &c.Hour, &c.RentCount); err != nil {
			return nil, fmt.Errorf("failed to scan hourly rental: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// QueryHourlyAvailability returns a station's availability aggregates within
// [from, to], ordered by hour.
func QueryHourlyAvailability(ctx context.Context, pool *pgxpool.Pool, uid int64, from, to time.Time) ([]models.HourlyAvailability, error) {
	rows, err := pool.Query(ctx, `
		SELECT uid, dt, bike_racks, mean_bikes
		FROM hourly_availability
		WHERE uid = $1 AND dt BETWEEN $2 AND $3
		ORDER BY dt
	`, uid, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly availability: %w", err)
	}
	defer rows.Close()

	var avail []models.HourlyAvailability
	for rows.Next() {
		var a models.HourlyAvailability
		if err := rows.Scan(&a.UID, &a.Hour, &a.BikeRacks, &a.MeanBikes); err != nil {
			return nil, fmt.Errorf("failed to scan hourly availability: %w", err)
		}
		avail = append(avail, a)
	}
	return avail, rows.Err()
}
