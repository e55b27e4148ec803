package rentals

import (
	"sort"
	"time"

	"github.com/velostat/velostat_core/internal/models"
	"github.com/velostat/velostat_core/internal/timeline"
)

// InferEvents scans a presence grid sorted by (bike, timestamp) and emits one
// rental event per detected departure. A departure at time T requires all of:
// the bike is docked at a genuine station at T, the next observation of the
// same bike is at a different station, and that next station is itself
// genuine (a bike that simply drops out of observation is not a rental). The
// last record of each bike has no successor and contributes nothing. Virtual
// identifiers flow through unchanged; each occurs at a single timestamp, so
// they can never produce an event.
func InferEvents(grid []models.PresenceRecord) []models.RentalEvent {
	var events []models.RentalEvent

	for i := 0; i+1 < len(grid); i++ {
		cur, next := grid[i], grid[i+1]
		if next.Bike != cur.Bike {
			continue
		}
		if cur.Station == models.NoStation || next.Station == models.NoStation {
			continue
		}
		if next.Station == cur.Station {
			continue
		}
		events = append(events, models.RentalEvent{UID: cur.Station, DepartedAt: cur.ObservedAt})
	}

	return events
}

// AggregateHourly floors each event to the start of its hour and counts
// events per (station, hour). Output is sparse: a (station, hour) pair with
// no events gets no row, and callers reindexing for modeling must treat the
// absence as zero. Rows come back sorted by (hour, station) so repeated runs
// over the same input are byte-identical.
func AggregateHourly(events []models.RentalEvent) []models.HourlyRentalCount {
	type key struct {
		uid  int64
		hour int64
	}

	counts := make(map[key]int)
	hours := make(map[int64]time.Time)
	for _, ev := range events {
		h := models.FloorHour(ev.DepartedAt)
		counts[key{ev.UID, h.UnixNano()}]++
		hours[h.UnixNano()] = h
	}

	rows := make([]models.HourlyRentalCount, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, models.HourlyRentalCount{UID: k.uid, Hour: hours[k.hour], RentCount: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Hour.Equal(rows[j].Hour) {
			return rows[i].Hour.Before(rows[j].Hour)
		}
		return rows[i].UID < rows[j].UID
	})

	return rows
}

// HourlyFromRecords is the full inference pipeline for one window of station
// records: normalize, pad, infer, aggregate.
func HourlyFromRecords(records []models.StationRecord) []models.HourlyRentalCount {
	snaps := groupSnapshots(records)
	grid := timeline.Build(timeline.NormalizeAll(snaps))
	return AggregateHourly(InferEvents(grid))
}

func groupSnapshots(records []models.StationRecord) []models.Snapshot {
	byTS := make(map[int64]*models.Snapshot)
	var order []int64
	for _, r := range records {
		ts := r.ObservedAt.UnixNano()
		snap, ok := byTS[ts]
		if !ok {
			snap = &models.Snapshot{ObservedAt: r.ObservedAt}
			byTS[ts] = snap
			order = append(order, ts)
		}
		snap.Stations = append(snap.Stations, r)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	snaps := make([]models.Snapshot, 0, len(order))
	for _, ts := range order {
		snaps = append(snaps, *byTS[ts])
	}
	return snaps
}
