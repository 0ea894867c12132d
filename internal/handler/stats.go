package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flowsurfer-web/internal/model"
	"github.com/iliyamo/flowsurfer-web/internal/repository"
)

// StatsSource is satisfied by *repository.AccessRepo.
type StatsSource interface {
	StatsSince(ctx context.Context, since time.Time) ([]model.RouteStat, error)
}

// StatsHandler serves aggregated access statistics to admins.
type StatsHandler struct {
	Source StatsSource
	Now    func() time.Time
}

type routeStat struct {
	Method       string  `json:"method"`
	Route        string  `json:"route"`
	Status       int     `json:"status"`
	Hits         uint64  `json:"hits"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

type statsResp struct {
	Since  time.Time   `json:"since"`
	Routes []routeStat `json:"routes"`
}

// Stats handles GET /v1/admin/stats?since=24h.
func (h *StatsHandler) Stats(c echo.Context) error {
	window := 24 * time.Hour
	if raw := c.QueryParam("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "since must be a positive duration like 1h or 30m"})
		}
		window = d
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	since := now().UTC().Add(-window)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rows, err := h.Source.StatsSince(ctx, since)
	if err != nil {
		if errors.Is(err, repository.ErrNotConfigured) {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "stats unavailable"})
		}
		c.Logger().Errorf("stats query: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "stats query failed"})
	}

	out := statsResp{Since: since, Routes: make([]routeStat, 0, len(rows))}
	for _, r := range rows {
		out.Routes = append(out.Routes, routeStat{
			Method:       r.Method,
			Route:        r.Route,
			Status:       r.Status,
			Hits:         r.Hits,
			AvgLatencyMS: r.AvgLatencyMS,
		})
	}
	return c.JSON(http.StatusOK, out)
}
