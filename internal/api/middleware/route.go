package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routePattern returns the matched chi route pattern, such as
// /v1/sensors/{sensorId}/measurements, so sensor and station IDs do not
// explode metric and span cardinality. It falls back to the raw path outside
// a chi router. The pattern is only complete after the handler has run.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
