package timeline

import (
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/velostat/velostat_core/internal/models"
)

// VirtualAllocator hands out virtual bike identifiers for stations reporting
// zero bikes. Each call returns a distinct strictly negative identifier, so a
// virtual bike never collides with a real (positive) identifier or with
// another virtual bike in the same batch. Allocators are scoped to one
// processing window and are not safe for concurrent use.
type VirtualAllocator struct {
	n int64
}

// NewVirtualAllocator returns an allocator starting a fresh identifier space.
func NewVirtualAllocator() *VirtualAllocator {
	return &VirtualAllocator{}
}

// Next returns the next virtual identifier.
func (a *VirtualAllocator) Next() int64 {
	a.n++
	return -a.n
}

// NormalizeSnapshot flattens one snapshot into presence records. Stations with
// at least one parseable bike identifier emit one record per bike; stations
// with none emit exactly one record under a freshly allocated virtual
// identifier, so "no bike here" stays trackable. Bike tokens that fail numeric
// coercion are dropped with a warning, never fatal.
func NormalizeSnapshot(snap models.Snapshot, alloc *VirtualAllocator) []models.PresenceRecord {
	records := make([]models.PresenceRecord, 0, len(snap.Stations))

	for _, st := range snap.Stations {
		emitted := 0
		for _, token := range st.BikeNumbers {
			bike, ok := parseBikeToken(token)
			if !ok {
				if strings.TrimSpace(token) != "" {
					log.Printf("Warning: dropping unparseable bike token %q at station %d", token, st.UID)
				}
				continue
			}
			records = append(records, models.PresenceRecord{
				Bike:       bike,
				ObservedAt: snap.ObservedAt,
				Station:    st.UID,
			})
			emitted++
		}

		if emitted == 0 {
			records = append(records, models.PresenceRecord{
				Bike:       alloc.Next(),
				ObservedAt: snap.ObservedAt,
				Station:    st.UID,
			})
		}
	}

	return records
}

// NormalizeAll runs NormalizeSnapshot over a whole window with a single
// allocator, keeping virtual identifiers unique across all its snapshots.
func NormalizeAll(snaps []models.Snapshot) []models.PresenceRecord {
	alloc := NewVirtualAllocator()
	var records []models.PresenceRecord
	for _, snap := range snaps {
		records = append(records, NormalizeSnapshot(snap, alloc)...)
	}
	return records
}

func parseBikeToken(token string) (int64, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Build assembles the complete presence grid for a window. Every distinct
// positive bike identifier gets one row per distinct observation timestamp:
// the observed station where a presence record exists, NoStation where the
// bike was not seen docked at that instant. Virtual identifiers are excluded
// from the padding set (they are station-local and never tracked across time)
// but their observed rows are kept, matching an outer join. The result is
// sorted by (bike, timestamp), the ordering the rental inference relies on.
func Build(records []models.PresenceRecord) []models.PresenceRecord {
	type key struct {
		bike int64
		ts   int64
	}

	tsSet := make(map[int64]time.Time)
	bikeSet := make(map[int64]struct{})
	observed := make(map[key]int64)
	var virtual []models.PresenceRecord

	for _, r := range records {
		if _, ok := tsSet[r.ObservedAt.UnixNano()]; !ok {
			tsSet[r.ObservedAt.UnixNano()] = r.ObservedAt
		}
		if r.Bike > 0 {
			bikeSet[r.Bike] = struct{}{}
			observed[key{r.Bike, r.ObservedAt.UnixNano()}] = r.Station
		} else {
			virtual = append(virtual, r)
		}
	}

	timestamps := make([]time.Time, 0, len(tsSet))
	for _, t := range tsSet {
		timestamps = append(timestamps, t)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

	bikes := make([]int64, 0, len(bikeSet))
	for b := range bikeSet {
		bikes = append(bikes, b)
	}
	sort.Slice(bikes, func(i, j int) bool { return bikes[i] < bikes[j] })

	grid := make([]models.PresenceRecord, 0, len(bikes)*len(timestamps)+len(virtual))
	for _, b := range bikes {
		for _, t := range timestamps {
			station := models.NoStation
			if s, ok := observed[key{b, t.UnixNano()}]; ok {
				station = s
			}
			grid = append(grid, models.PresenceRecord{Bike: b, ObservedAt: t, Station: station})
		}
	}

	grid = append(grid, virtual...)
	sort.Slice(grid, func(i, j int) bool {
		if grid[i].Bike != grid[j].Bike {
			return grid[i].Bike < grid[j].Bike
		}
		return grid[i].ObservedAt.Before(grid[j].ObservedAt)
	})

	return grid
}
