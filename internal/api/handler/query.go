package handler

import (
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/airstat/airstat/internal/api/models"
)

var validate = newValidator()

// newValidator names fields after their query or json tag so field errors
// point at what the client actually sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"query", "json"} {
			name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// validationErrors converts validator errors into API field errors.
func validationErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Field: "", Message: err.Error(), Code: "invalid"}}
	}

	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
			Code:    fe.Tag(),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return "must have at most " + fe.Param() + " items or characters"
		}
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	default:
		return "is invalid"
	}
}

// queryParser reads typed values from a query string, collecting a field
// error for every value that does not parse.
type queryParser struct {
	values url.Values
	errs   []models.FieldError
}

func newQueryParser(values url.Values) *queryParser {
	return &queryParser{values: values}
}

func (p *queryParser) str(name string) string {
	return strings.TrimSpace(p.values.Get(name))
}

func (p *queryParser) boolean(name string) bool {
	raw := p.str(name)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, models.FieldError{Field: name, Message: "must be true or false", Code: "boolean"})
		return false
	}
	return v
}

func (p *queryParser) float(name string) *float64 {
	raw := p.str(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, models.FieldError{Field: name, Message: "must be a number", Code: "number"})
		return nil
	}
	return &v
}

func (p *queryParser) integer(name string) int {
	raw := p.str(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, models.FieldError{Field: name, Message: "must be an integer", Code: "integer"})
		return 0
	}
	return v
}

// bind validates dst once every value has parsed.
func (p *queryParser) bind(dst interface{}) []models.FieldError {
	if len(p.errs) > 0 {
		return p.errs
	}
	if err := validate.Struct(dst); err != nil {
		return validationErrors(err)
	}
	return nil
}

type stationsQuery struct {
	City    string `query:"city" validate:"required,max=64"`
	Offline bool   `query:"offline"`
}

func bindStationsQuery(values url.Values) (stationsQuery, []models.FieldError) {
	p := newQueryParser(values)
	q := stationsQuery{
		City:    p.str("city"),
		Offline: p.boolean("offline"),
	}
	return q, p.bind(q)
}

type nearbyQuery struct {
	Lat     *float64 `query:"lat" validate:"required,gte=-90,lte=90"`
	Lon     *float64 `query:"lon" validate:"required,gte=-180,lte=180"`
	Radius  float64  `query:"radius" validate:"omitempty,gt=0,lte=200000"`
	Limit   int      `query:"limit" validate:"omitempty,gte=1,lte=50"`
	Offline bool     `query:"offline"`
}

func bindNearbyQuery(values url.Values) (nearbyQuery, []models.FieldError) {
	p := newQueryParser(values)
	q := nearbyQuery{
		Lat:     p.float("lat"),
		Lon:     p.float("lon"),
		Offline: p.boolean("offline"),
		Limit:   p.integer("limit"),
	}
	if radius := p.float("radius"); radius != nil {
		q.Radius = *radius
	}
	return q, p.bind(q)
}

// reportQuery selects the range of a measurement report. An empty range
// means the last day.
type reportQuery struct {
	Range   string `query:"range" validate:"omitempty,oneof=day week month year custom"`
	From    string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To      string `query:"to" validate:"omitempty,datetime=2006-01-02"`
	Offline bool   `query:"offline"`
}

func bindReportQuery(values url.Values) (reportQuery, []models.FieldError) {
	p := newQueryParser(values)
	q := reportQuery{
		Range:   strings.ToLower(p.str("range")),
		From:    p.str("from"),
		To:      p.str("to"),
		Offline: p.boolean("offline"),
	}
	if q.Range == "" {
		q.Range = "day"
	}
	return q, p.bind(q)
}

func offlineFlag(r *http.Request) (bool, []models.FieldError) {
	p := newQueryParser(r.URL.Query())
	offline := p.boolean("offline")
	return offline, p.errs
}
