package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/airstat/airstat/internal/airquality"
	"github.com/airstat/airstat/internal/analysis"
	"github.com/airstat/airstat/internal/api/models"
	"github.com/airstat/airstat/internal/api/response"
)

// AirQuality is the subset of the air quality service the API serves.
type AirQuality interface {
	Stations(ctx context.Context, req airquality.StationsRequest) (*airquality.StationsResult, error)
	NearbyStations(ctx context.Context, req airquality.NearbyRequest) (*airquality.NearbyResult, error)
	Sensors(ctx context.Context, req airquality.SensorsRequest) (*airquality.SensorsResult, error)
	Measurements(ctx context.Context, req airquality.SeriesRequest) (*airquality.SeriesResult, error)
}

// dataSource describes where a response's data came from. Anything not fresh
// from the network carries a warning.
func dataSource(source airquality.Source, fetchedAt time.Time, offlineRequested bool, fetchErr error) models.DataSource {
	ds := models.DataSource{
		Source:    string(source),
		FetchedAt: models.NewTimestamp(fetchedAt),
	}

	var warning string
	switch {
	case source == airquality.SourceNone:
		warning = "no data available online or offline"
	case source == airquality.SourceOffline && offlineRequested:
		warning = "offline mode: showing stored data"
	case source == airquality.SourceOffline:
		warning = "network unavailable: showing stored data"
	}
	if warning != "" {
		if fetchErr != nil && !offlineRequested {
			warning += " (" + fetchErr.Error() + ")"
		}
		ds.Warning = &warning
	}
	return ds
}

func stationModel(st airquality.Station) models.Station {
	return models.Station{
		ID:       st.ID,
		Name:     st.Name,
		City:     st.City,
		Commune:  st.Commune,
		District: st.District,
		Province: st.Province,
		Street:   st.Street,
		Lat:      st.Lat,
		Lon:      st.Lon,
	}
}

func sensorModel(s airquality.Sensor) models.Sensor {
	return models.Sensor{
		ID:           s.ID,
		StationID:    s.StationID,
		ParamName:    s.ParamName,
		ParamFormula: s.ParamFormula,
		ParamCode:    s.ParamCode,
		ParamID:      s.ParamID,
	}
}

func reportModel(report analysis.Report, ds models.DataSource) models.MeasurementReport {
	out := models.MeasurementReport{
		SensorID:         report.SensorID,
		Key:              report.Key,
		Range:            report.Selection.String(),
		Entries:          make([]models.ReportEntry, 0, len(report.Entries)),
		Trend:            string(report.Trend),
		TrendDescription: report.Trend.Description(),
		Data:             ds,
	}

	for _, m := range report.Entries {
		out.Entries = append(out.Entries, models.ReportEntry{
			Timestamp: models.Timestamp(m.Timestamp),
			Value:     m.Value,
		})
	}

	if report.HasStatistics() {
		out.Statistics = &models.Statistics{
			Count:   report.Count,
			Minimum: models.Extreme{Value: report.Min.Value, Timestamp: models.Timestamp(report.Min.Timestamp)},
			Maximum: models.Extreme{Value: report.Max.Value, Timestamp: models.Timestamp(report.Max.Timestamp)},
			Average: report.Average,
		}
	}
	return out
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int, []models.FieldError) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		return 0, []models.FieldError{{Field: name, Message: "must be a positive integer", Code: "id"}}
	}
	return id, nil
}

// serviceError maps air quality service errors to problem responses.
func serviceError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, airquality.ErrEmptyCity):
		response.BadRequest(w, r, err.Error(), []models.FieldError{{Field: "city", Message: "is required", Code: "required"}})
	case errors.Is(err, airquality.ErrNoData):
		response.NoData(w, r, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "request cancelled before data was available")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("air quality request failed")
		response.InternalError(w, r, "unexpected error while loading data")
	}
}
