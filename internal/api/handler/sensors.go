package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/airstat/airstat/internal/airquality"
	"github.com/airstat/airstat/internal/analysis"
	"github.com/airstat/airstat/internal/api/response"
	"github.com/airstat/airstat/internal/chart"
	"github.com/airstat/airstat/internal/featureflags"
)

// dataSourceHeader carries the data source on non-JSON responses.
const dataSourceHeader = "X-Data-Source"

// SensorHandler handles measurement endpoints of a sensor.
type SensorHandler struct {
	service AirQuality
	engine  *analysis.Engine
	flags   FeatureFlags
	logger  zerolog.Logger
}

// NewSensorHandler creates a new SensorHandler.
func NewSensorHandler(service AirQuality, engine *analysis.Engine, flags FeatureFlags, logger zerolog.Logger) *SensorHandler {
	if engine == nil {
		engine = analysis.NewEngine()
	}
	return &SensorHandler{service: service, engine: engine, flags: flags, logger: logger}
}

// Measurements handles GET /v1/sensors/{sensorId}/measurements - the filtered
// series with statistics and trend.
func (h *SensorHandler) Measurements(w http.ResponseWriter, r *http.Request) {
	report, result, offline, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	ds := dataSource(result.Source, result.FetchedAt, offline, result.FetchErr)
	response.JSON(w, r, http.StatusOK, reportModel(report, ds))
}

// Report handles GET /v1/sensors/{sensorId}/report - the plain text report.
func (h *SensorHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, result, _, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	body := analysis.Format(report)
	if body == "" {
		body = analysis.NoData + "\n"
	}

	w.Header().Set(dataSourceHeader, string(result.Source))
	response.Text(w, r, http.StatusOK, body)
}

// Chart handles GET /v1/sensors/{sensorId}/chart.png - the PNG line chart.
func (h *SensorHandler) Chart(w http.ResponseWriter, r *http.Request) {
	if h.flags.IsEnabled(r.Context(), featureflags.FlagDisableCharts) {
		response.FeatureDisabled(w, r, "chart rendering is disabled")
		return
	}

	report, result, _, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := chart.Render(&buf, chart.ReportOptions(report), report.Points); err != nil {
		if errors.Is(err, chart.ErrNotEnoughPoints) {
			response.NotFound(w, r, "not enough measurements in the selected range to draw a chart")
			return
		}
		h.logger.Error().Err(err).Int("sensor_id", report.SensorID).Msg("chart rendering failed")
		response.InternalError(w, r, "chart rendering failed")
		return
	}

	w.Header().Set(dataSourceHeader, string(result.Source))
	w.Header().Set("Cache-Control", "no-store")
	response.Blob(w, r, http.StatusOK, "image/png", buf.Bytes())
}

// loadReport binds the range query, loads the series and computes the report.
// It writes the error response itself and returns ok=false on failure.
func (h *SensorHandler) loadReport(w http.ResponseWriter, r *http.Request) (analysis.Report, *airquality.SeriesResult, bool, bool) {
	sensorID, errs := pathID(r, "sensorId")
	if errs != nil {
		response.BadRequest(w, r, "invalid sensor id", errs)
		return analysis.Report{}, nil, false, false
	}

	q, errs := bindReportQuery(r.URL.Query())
	if errs != nil {
		response.BadRequest(w, r, "invalid query parameters", errs)
		return analysis.Report{}, nil, false, false
	}

	sel, err := analysis.ParseSelection(q.Range, q.From, q.To)
	if err != nil {
		response.InvalidRange(w, r, err.Error())
		return analysis.Report{}, nil, false, false
	}

	offline := offlineRequested(r.Context(), h.flags, q.Offline)
	result, err := h.service.Measurements(r.Context(), airquality.SeriesRequest{
		SensorID: sensorID,
		Offline:  offline,
	})
	if err != nil {
		serviceError(w, r, h.logger, err)
		return analysis.Report{}, nil, false, false
	}

	report := h.engine.Compute(result.Series, sel)
	if report.SensorID == 0 {
		report.SensorID = sensorID
	}
	return report, result, offline, true
}

