package gios

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Europe/Warsaw must resolve on minimal images

	"github.com/airstat/airstat/internal/airquality"
)

// DefaultTimezone is the zone GIOS reports local times in.
const DefaultTimezone = "Europe/Warsaw"

// ErrMalformedPayload is returned when a body is not the JSON shape the
// endpoint produces.
var ErrMalformedPayload = errors.New("JSON parsing error")

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// Codec decodes GIOS payloads into domain types.
type Codec struct {
	loc *time.Location
}

// NewCodec creates a codec that interprets zone-less dates in loc.
// A nil loc means DefaultTimezone.
func NewCodec(loc *time.Location) *Codec {
	if loc == nil {
		var err error
		loc, err = time.LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
	}
	return &Codec{loc: loc}
}

// Location returns the zone used for zone-less dates.
func (c *Codec) Location() *time.Location {
	return c.loc
}

// API payload types.

type stationPayload struct {
	ID            int          `json:"id"`
	StationName   string       `json:"stationName"`
	GegrLat       flexFloat    `json:"gegrLat"`
	GegrLon       flexFloat    `json:"gegrLon"`
	City          *cityPayload `json:"city"`
	AddressStreet *string      `json:"addressStreet"`
}

type cityPayload struct {
	ID      int             `json:"id"`
	Name    string          `json:"name"`
	Commune *communePayload `json:"commune"`
}

type communePayload struct {
	CommuneName  string `json:"communeName"`
	DistrictName string `json:"districtName"`
	ProvinceName string `json:"provinceName"`
}

type sensorPayload struct {
	ID        int          `json:"id"`
	StationID int          `json:"stationId"`
	Param     paramPayload `json:"param"`
}

type paramPayload struct {
	ParamName    string `json:"paramName"`
	ParamFormula string `json:"paramFormula"`
	ParamCode    string `json:"paramCode"`
	IDParam      int    `json:"idParam"`
}

type dataPayload struct {
	Key    string         `json:"key"`
	Values []valuePayload `json:"values"`
}

type valuePayload struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// flexFloat accepts a JSON number or a numeric string; GIOS sends
// coordinates as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse coordinate %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// DecodeStations decodes a /station/findAll body.
func (c *Codec) DecodeStations(body []byte) ([]airquality.Station, error) {
	var payload []stationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: stations: %w", ErrMalformedPayload, err)
	}

	stations := make([]airquality.Station, 0, len(payload))
	for _, p := range payload {
		st := airquality.Station{
			ID:   p.ID,
			Name: p.StationName,
			Lat:  float64(p.GegrLat),
			Lon:  float64(p.GegrLon),
		}
		if p.AddressStreet != nil {
			st.Street = *p.AddressStreet
		}
		if p.City != nil {
			st.City = p.City.Name
			if p.City.Commune != nil {
				st.Commune = p.City.Commune.CommuneName
				st.District = p.City.Commune.DistrictName
				st.Province = p.City.Commune.ProvinceName
			}
		}
		stations = append(stations, st)
	}
	return stations, nil
}

// DecodeSensors decodes a /station/sensors/{id} body.
func (c *Codec) DecodeSensors(body []byte) ([]airquality.Sensor, error) {
	var payload []sensorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: sensors: %w", ErrMalformedPayload, err)
	}

	sensors := make([]airquality.Sensor, 0, len(payload))
	for _, p := range payload {
		sensors = append(sensors, airquality.Sensor{
			ID:           p.ID,
			StationID:    p.StationID,
			ParamName:    p.Param.ParamName,
			ParamFormula: p.Param.ParamFormula,
			ParamCode:    p.Param.ParamCode,
			ParamID:      p.Param.IDParam,
		})
	}
	return sensors, nil
}

// DecodeSeries decodes a /data/getData/{id} body. Entries keep their source
// order; an unparseable date yields a zero Timestamp.
func (c *Codec) DecodeSeries(sensorID int, body []byte) (*airquality.Series, error) {
	var payload dataPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: data: %w", ErrMalformedPayload, err)
	}

	series := &airquality.Series{
		SensorID:     sensorID,
		Key:          payload.Key,
		Measurements: make([]airquality.Measurement, 0, len(payload.Values)),
	}
	for _, v := range payload.Values {
		ts, _ := c.ParseDate(v.Date)
		series.Measurements = append(series.Measurements, airquality.Measurement{
			Timestamp: ts,
			Value:     v.Value,
		})
	}
	return series, nil
}

// ParseDate parses a GIOS date. Dates without a zone are read in the codec's
// location. It returns the zero time and false when no layout matches.
func (c *Codec) ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
