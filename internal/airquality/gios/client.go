// Package gios provides a client for the GIOS (Polish Chief Inspectorate of
// Environmental Protection) air quality REST API.
package gios

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/airstat/airstat/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the GIOS API.
	DefaultBaseURL = "https://api.gios.gov.pl/pjp-api/rest"

	// ProviderName identifies this provider.
	ProviderName = "gios"

	// maxBodySize caps a single response body. The full station list is well
	// under 1 MiB; a year of hourly data is a few hundred KiB.
	maxBodySize = 32 << 20
)

// ErrEmptyResponse is returned when the API answers 200 with no body.
var ErrEmptyResponse = errors.New("empty response body")

// ClientConfig holds configuration for the GIOS client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (must implement HTTPDoer).
	// If nil, a default resilient client will be created and registered.
	HTTPClient HTTPDoer

	// Registry receives request outcomes. Defaults to resilience.GlobalRegistry.
	Registry *resilience.Registry

	// Timeout for individual API requests (default: 10s).
	Timeout time.Duration

	// Logger receives retry and circuit breaker events of the default client.
	Logger zerolog.Logger
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a GIOS API client. It returns raw JSON bodies; decoding is left
// to Codec so the same bytes can be stored for offline use.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	registry   *resilience.Registry
}

// NewClient creates a new GIOS client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	registry := cfg.Registry
	if registry == nil {
		registry = resilience.GlobalRegistry
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		rcCfg := resilience.DefaultClientConfig(ProviderName)
		rcCfg.Timeout = timeout
		rcCfg.Logger = cfg.Logger
		rc := resilience.NewClient(rcCfg)
		registry.Register(ProviderName, rc)
		httpClient = rc
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		registry:   registry,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchStations retrieves the list of all measuring stations.
func (c *Client) FetchStations(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/station/findAll")
}

// FetchSensors retrieves the measuring positions of a station.
func (c *Client) FetchSensors(ctx context.Context, stationID int) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("/station/sensors/%d", stationID))
}

// FetchData retrieves the measurement series of a sensor.
func (c *Client) FetchData(ctx context.Context, sensorID int) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("/data/getData/%d", sensorID))
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	body, err := c.do(ctx, path)
	if err != nil {
		c.registry.RecordFailure(ProviderName, err)
		return nil, err
	}
	c.registry.RecordSuccess(ProviderName)
	return body, nil
}

func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: %w", path, ErrEmptyResponse)
	}

	return body, nil
}
