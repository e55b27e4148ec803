package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velostat/velostat_core/internal/db"
	"github.com/velostat/velostat_core/internal/models"
)

const hourParamLayout = "2006-01-02T15"

// Handler serves the computed hourly tables.
type Handler struct {
	pool *pgxpool.Pool
}

// NewHandler wires the handlers to a database pool.
func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool}
}

// Register mounts all routes on the app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/v1/stations", h.Stations)
	app.Get("/v1/stations/:uid/rentals", h.StationRentals)
	app.Get("/v1/stations/:uid/availability", h.StationAvailability)
	app.Get("/v1/rentals/hourly", h.RentalsForHour)
}

// Health reports service and database health.
func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.pool.Ping(c.Context()); err != nil {
		return c.Status(503).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// Stations handles GET /v1/stations.
func (h *Handler) Stations(c *fiber.Ctx) error {
	stations, err := db.ListStations(c.Context(), h.pool)
	if err != nil {
		return fmt.Errorf("failed to list stations: %w", err)
	}
	if stations == nil {
		stations = []db.Station{}
	}
	return c.JSON(fiber.Map{"stations": stations})
}

// StationRentals handles GET /v1/stations/:uid/rentals?from=&to=.
// Hours missing from the response had zero rentals; clients reindexing for
// modeling must fill them with zero.
func (h *Handler) StationRentals(c *fiber.Ctx) error {
	uid, err := strconv.ParseInt(c.Params("uid"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid station uid"})
	}

	from, to, err := parseRange(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	counts, err := db.QueryHourlyRentals(c.Context(), h.pool, uid, from, to)
	if err != nil {
		return fmt.Errorf("failed to query rentals: %w", err)
	}
	if counts == nil {
		counts = []models.HourlyRentalCount{}
	}
	return c.JSON(fiber.Map{"uid": uid, "rentals": counts})
}

// StationAvailability handles GET /v1/stations/:uid/availability?from=&to=.
func (h *Handler) StationAvailability(c *fiber.Ctx) error {
	uid, err := strconv.ParseInt(c.Params("uid"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid station uid"})
	}

	from, to, err := parseRange(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	avail, err := db.QueryHourlyAvailability(c.Context(), h.pool, uid, from, to)
	if err != nil {
		return fmt.Errorf("failed to query availability: %w", err)
	}
	if avail == nil {
		avail = []models.HourlyAvailability{}
	}
	return c.JSON(fiber.Map{"uid": uid, "availability": avail})
}

// RentalsForHour handles GET /v1/rentals/hourly?dt=YYYY-MM-DDTHH.
func (h *Handler) RentalsForHour(c *fiber.Ctx) error {
	dtStr := c.Query("dt")
	if dtStr == "" {
		return c.Status(400).JSON(fiber.Map{"error": "missing required parameter: dt"})
	}

	hour, err := time.ParseInLocation(hourParamLayout, dtStr, time.Local)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": fmt.Sprintf("invalid dt, expected %s", hourParamLayout)})
	}

	counts, err := db.QueryRentalsForHour(c.Context(), h.pool, hour)
	if err != nil {
		return fmt.Errorf("failed to query rentals: %w", err)
	}
	if counts == nil {
		counts = []models.HourlyRentalCount{}
	}
	return c.JSON(fiber.Map{"dt": hour, "rentals": counts})
}

func parseRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	fromStr, toStr := c.Query("from"), c.Query("to")
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("missing required parameters: from and to")
	}

	from, err := time.ParseInLocation(hourParamLayout, fromStr, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from, expected %s", hourParamLayout)
	}
	to, err := time.ParseInLocation(hourParamLayout, toStr, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to, expected %s", hourParamLayout)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to precedes from")
	}
	return from, to, nil
}
