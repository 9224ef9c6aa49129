package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/airstat/airstat/internal/api/middleware"
	"github.com/airstat/airstat/internal/api/models"
	"github.com/airstat/airstat/internal/api/response"
)

// requestWithContext creates an HTTP request that has been processed by the RequestID middleware
// to populate the context with a request ID.
func requestWithContext(t *testing.T, method, path string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)

	var processedReq *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processedReq = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	return processedReq, httptest.NewRecorder()
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/stations")

	response.JSON(rec, req, http.StatusOK, map[string]string{"city": "Wrocław"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if requestID := rec.Header().Get("X-Request-Id"); len(requestID) < 10 {
		t.Errorf("expected a request ID, got %q", requestID)
	}
	if contentType := rec.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", contentType)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["city"] != "Wrocław" {
		t.Errorf("expected city Wrocław, got %q", body["city"])
	}
}

func TestJSON_WithoutRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, nil)

	if rec.Header().Get("X-Request-Id") != "" {
		t.Error("expected no X-Request-Id header without middleware")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got %q", rec.Body.String())
	}
}

func TestText(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/sensors/92/report")

	response.Text(rec, req, http.StatusOK, "26.04.2025 10:00 → 10\n")

	if contentType := rec.Header().Get("Content-Type"); contentType != "text/plain; charset=utf-8" {
		t.Errorf("unexpected Content-Type %q", contentType)
	}
	if rec.Body.String() != "26.04.2025 10:00 → 10\n" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestBlob(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/sensors/92/chart.png")

	response.Blob(rec, req, http.StatusOK, "image/png", []byte{0x89, 'P', 'N', 'G'})

	if contentType := rec.Header().Get("Content-Type"); contentType != "image/png" {
		t.Errorf("unexpected Content-Type %q", contentType)
	}
	if length := rec.Header().Get("Content-Length"); length != "4" {
		t.Errorf("expected Content-Length 4, got %q", length)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter, r *http.Request)
		status int
		typ    string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			response.BadRequest(w, r, "invalid query", []models.FieldError{{Field: "city", Message: "is required"}})
		}, http.StatusBadRequest, models.ProblemTypeValidation},
		{"invalid range", func(w http.ResponseWriter, r *http.Request) {
			response.InvalidRange(w, r, "from is after to")
		}, http.StatusBadRequest, models.ProblemTypeInvalidRange},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			response.NotFound(w, r, "no such route")
		}, http.StatusNotFound, models.ProblemTypeNotFound},
		{"no data", func(w http.ResponseWriter, r *http.Request) {
			response.NoData(w, r, "stations unavailable")
		}, http.StatusServiceUnavailable, models.ProblemTypeNoData},
		{"internal", func(w http.ResponseWriter, r *http.Request) {
			response.InternalError(w, r, "boom")
		}, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) {
			response.ServiceUnavailable(w, r, "store down")
		}, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := requestWithContext(t, http.MethodGet, "/v1/stations")

			tt.write(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			if contentType := rec.Header().Get("Content-Type"); contentType != "application/problem+json" {
				t.Errorf("expected problem content type, got %q", contentType)
			}

			var problem models.Problem
			if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
				t.Fatalf("failed to decode problem: %v", err)
			}
			if problem.Type != tt.typ {
				t.Errorf("expected type %q, got %q", tt.typ, problem.Type)
			}
			if problem.Instance != "/v1/stations" {
				t.Errorf("expected instance /v1/stations, got %q", problem.Instance)
			}
			if problem.TraceID == "" || problem.TraceID != rec.Header().Get("X-Request-Id") {
				t.Errorf("trace ID %q does not match request ID header %q", problem.TraceID, rec.Header().Get("X-Request-Id"))
			}
		})
	}
}
