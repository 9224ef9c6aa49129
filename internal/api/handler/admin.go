package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/airstat/airstat/internal/airquality"
	"github.com/airstat/airstat/internal/api/middleware"
	"github.com/airstat/airstat/internal/api/models"
	"github.com/airstat/airstat/internal/api/response"
	"github.com/airstat/airstat/internal/worker"
)

// Refresher warms the offline store for a set of cities.
type Refresher interface {
	RunCities(ctx context.Context, cities []string) *worker.RefreshResult
}

// AdminHandler handles administrative endpoints.
type AdminHandler struct {
	refresher Refresher
	flags     FeatureFlags
	logger    zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(refresher Refresher, flags FeatureFlags, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{refresher: refresher, flags: flags, logger: logger}
}

// RefreshCache handles POST /v1/admin/cache/refresh - fetch and store the
// stations, sensors and series of the requested cities.
func (h *AdminHandler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		response.ServiceUnavailable(w, r, "cache refresh is not configured")
		return
	}

	var input models.CacheRefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := validate.Struct(input); err != nil {
		response.BadRequest(w, r, "invalid request body", validationErrors(err))
		return
	}

	cities := make([]string, 0, len(input.Cities))
	seen := make(map[string]bool, len(input.Cities))
	for _, c := range input.Cities {
		city := airquality.NormalizeCity(c)
		if city == "" || seen[city] {
			continue
		}
		seen[city] = true
		cities = append(cities, city)
	}

	h.logger.Info().
		Str("subject", middleware.GetSubject(r.Context())).
		Strs("cities", cities).
		Msg("cache refresh requested")

	result := h.refresher.RunCities(r.Context(), cities)
	response.JSON(w, r, http.StatusOK, refreshSummary(result))
}

func refreshSummary(result *worker.RefreshResult) models.CacheRefreshSummary {
	out := models.CacheRefreshSummary{
		StartedAt:        models.Timestamp(result.StartTime),
		FinishedAt:       models.Timestamp(result.EndTime),
		DurationMs:       result.Duration.Milliseconds(),
		Cities:           result.Cities,
		TotalStations:    result.TotalStations,
		Successful:       result.Successful,
		Failed:           result.Failed,
		SensorsRefreshed: result.SensorsRefreshed,
		SeriesRefreshed:  result.SeriesRefreshed,
		OfflineFallbacks: result.OfflineFallbacks,
	}
	if out.Cities == nil {
		out.Cities = []string{}
	}
	for _, e := range result.Errors {
		out.Errors = append(out.Errors, models.CacheRefreshError{
			Stage:     e.Stage,
			City:      e.City,
			StationID: e.StationID,
			SensorID:  e.SensorID,
			Error:     e.Error,
		})
	}
	return out
}
