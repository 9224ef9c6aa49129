package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/airstat/airstat/internal/airquality"
	"github.com/airstat/airstat/internal/api/models"
	"github.com/airstat/airstat/internal/api/response"
	"github.com/airstat/airstat/internal/featureflags"
)

// StationHandler handles station endpoints.
type StationHandler struct {
	service AirQuality
	flags   FeatureFlags
	logger  zerolog.Logger
}

// NewStationHandler creates a new StationHandler.
func NewStationHandler(service AirQuality, flags FeatureFlags, logger zerolog.Logger) *StationHandler {
	return &StationHandler{service: service, flags: flags, logger: logger}
}

// ListStations handles GET /v1/stations?city= - stations of a city.
func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	q, errs := bindStationsQuery(r.URL.Query())
	if errs != nil {
		response.BadRequest(w, r, "invalid query parameters", errs)
		return
	}

	offline := offlineRequested(r.Context(), h.flags, q.Offline)
	result, err := h.service.Stations(r.Context(), airquality.StationsRequest{
		City:    q.City,
		Offline: offline,
	})
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}

	out := models.StationList{
		City:     result.City,
		Stations: make([]models.Station, 0, len(result.Stations)),
		Data:     dataSource(result.Source, result.FetchedAt, offline, result.FetchErr),
	}
	for _, st := range result.Stations {
		out.Stations = append(out.Stations, stationModel(st))
	}

	response.JSON(w, r, http.StatusOK, out)
}

// NearbyStations handles GET /v1/stations/nearby?lat=&lon= - closest stations.
func (h *StationHandler) NearbyStations(w http.ResponseWriter, r *http.Request) {
	if h.flags.IsEnabled(r.Context(), featureflags.FlagDisableNearby) {
		response.FeatureDisabled(w, r, "nearby station search is disabled")
		return
	}

	q, errs := bindNearbyQuery(r.URL.Query())
	if errs != nil {
		response.BadRequest(w, r, "invalid query parameters", errs)
		return
	}

	offline := offlineRequested(r.Context(), h.flags, q.Offline)
	result, err := h.service.NearbyStations(r.Context(), airquality.NearbyRequest{
		Lat: *q.Lat,
		Lon: *q.Lon,
		Config: airquality.NearbyConfig{
			MaxDistance: q.Radius,
			MaxStations: q.Limit,
		},
		Offline: offline,
	})
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}

	out := models.NearbyStationList{
		Lat:      result.Lat,
		Lon:      result.Lon,
		Stations: make([]models.NearbyStation, 0, len(result.Stations)),
		Data:     dataSource(result.Source, result.FetchedAt, offline, result.FetchErr),
	}
	for _, ns := range result.Stations {
		out.Stations = append(out.Stations, models.NearbyStation{
			Station:        stationModel(ns.Station),
			DistanceMeters: ns.Distance,
		})
	}

	response.JSON(w, r, http.StatusOK, out)
}

// ListSensors handles GET /v1/stations/{stationId}/sensors.
func (h *StationHandler) ListSensors(w http.ResponseWriter, r *http.Request) {
	stationID, errs := pathID(r, "stationId")
	if errs != nil {
		response.BadRequest(w, r, "invalid station id", errs)
		return
	}
	offline, errs := offlineFlag(r)
	if errs != nil {
		response.BadRequest(w, r, "invalid query parameters", errs)
		return
	}
	offline = offlineRequested(r.Context(), h.flags, offline)

	result, err := h.service.Sensors(r.Context(), airquality.SensorsRequest{
		StationID: stationID,
		Offline:   offline,
	})
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}

	out := models.SensorList{
		StationID: result.StationID,
		Sensors:   make([]models.Sensor, 0, len(result.Sensors)),
		Data:      dataSource(result.Source, result.FetchedAt, offline, result.FetchErr),
	}
	for _, s := range result.Sensors {
		out.Sensors = append(out.Sensors, sensorModel(s))
	}

	response.JSON(w, r, http.StatusOK, out)
}
