package rentals

import (
	"math"
	"sort"

	"github.com/velostat/velostat_core/internal/models"
)

// AggregateAvailability reduces raw station records to (station, hour) rows
// carrying the first observed rack count in the hour (racks are assumed
// stable within an hour) and the rounded mean of available bikes across the
// hour's observations. Records with unparseable counts simply contribute
// nothing to the respective field. Rows come back sorted by (hour, station).
func AggregateAvailability(records []models.StationRecord) []models.HourlyAvailability {
	type key struct {
		uid  int64
		hour int64
	}
	type acc struct {
		row       models.HourlyAvailability
		bikeSum   int64
		bikeCount int64
	}

	sorted := make([]models.StationRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ObservedAt.Before(sorted[j].ObservedAt) })

	accs := make(map[key]*acc)
	var order []key
	for _, r := range sorted {
		h := models.FloorHour(r.ObservedAt)
		k := key{r.UID, h.UnixNano()}
		a, ok := accs[k]
		if !ok {
			a = &acc{row: models.HourlyAvailability{UID: r.UID, Hour: h}}
			accs[k] = a
			order = append(order, k)
		}
		if a.row.BikeRacks == nil && r.BikeRacks != nil {
			racks := *r.BikeRacks
			a.row.BikeRacks = &racks
		}
		if r.Bikes != nil {
			a.bikeSum += *r.Bikes
			a.bikeCount++
		}
	}

	rows := make([]models.HourlyAvailability, 0, len(order))
	for _, k := range order {
		a := accs[k]
		if a.bikeCount > 0 {
			mean := math.Round(float64(a.bikeSum) / float64(a.bikeCount))
			a.row.MeanBikes = &mean
		}
		rows = append(rows, a.row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Hour.Equal(rows[j].Hour) {
			return rows[i].Hour.Before(rows[j].Hour)
		}
		return rows[i].UID < rows[j].UID
	})

	return rows
}
