// Package client provides the Sherpa SOAP client with request throttling,
// error classification and metrics. It performs single attempts; retries
// belong to the caller.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/sherpa-tap/pkg/pagination"
	"github.com/Sternrassler/sherpa-tap/pkg/ratelimit"
	"github.com/Sternrassler/sherpa-tap/pkg/retry"
)

// Prometheus metrics for Sherpa client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherpa_requests_total",
		Help: "Total Sherpa requests by service and status",
	}, []string{"service", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sherpa_request_duration_seconds",
		Help:    "Sherpa request duration in seconds by service",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"service"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherpa_errors_total",
		Help: "Total Sherpa errors by class",
	}, []string{"class"})
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 64 << 20

// Config holds the client configuration.
type Config struct {
	// Endpoint is the service URL, e.g. https://host/214/Sherpa.asmx.
	Endpoint string

	// SecurityCode authenticates every call.
	SecurityCode string

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// RequestsPerSecond throttles calls; zero disables throttling.
	RequestsPerSecond float64

	UserAgent string
}

// DefaultConfig returns a default configuration for endpoint.
func DefaultConfig(endpoint, securityCode string) Config {
	return Config{
		Endpoint:          endpoint,
		SecurityCode:      securityCode,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		UserAgent:         "sherpa-tap/1.0",
	}
}

// EndpointFromWSDL derives the service endpoint from a WSDL URL.
func EndpointFromWSDL(wsdlURL string) string {
	u := strings.TrimSpace(wsdlURL)
	if i := strings.Index(strings.ToLower(u), "?wsdl"); i >= 0 {
		u = u[:i]
	}
	return u
}

// Client calls Sherpa services.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a new Sherpa client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return nil, fmt.Errorf("%w: endpoint must be an http(s) URL (got %q)", ErrInvalidConfig, cfg.Endpoint)
	}
	if cfg.SecurityCode == "" {
		return nil, fmt.Errorf("%w: security code is required", ErrInvalidConfig)
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("%w: requests_per_second must be >= 0 (got %v)", ErrInvalidConfig, cfg.RequestsPerSecond)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "sherpa-client").Logger()

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    ratelimit.New(cfg.RequestsPerSecond, logger),
		config:     cfg,
		logger:     logger,
	}, nil
}

// FetchPage implements pagination.Fetcher. Client errors are marked
// permanent so the retry policy gives up on them immediately.
func (c *Client) FetchPage(ctx context.Context, req pagination.FetchRequest) (pagination.Envelope, error) {
	params := make(map[string]string, len(req.Params)+1)
	maps.Copy(params, req.Params)
	if req.CursorParam != "" {
		params[req.CursorParam] = strconv.FormatUint(req.Cursor, 10)
	}

	result, err := c.Call(ctx, req.Service, params)
	if err != nil {
		var se *SherpaError
		if errors.As(err, &se) && !se.Retryable() {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	return result, nil
}

// Call invokes service with params and returns its result element as
// generic data.
func (c *Client) Call(ctx context.Context, service string, params map[string]string) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(service).Observe(time.Since(startTime).Seconds())
	}()

	body := encodeEnvelope(service, c.config.SecurityCode, params)

	if ev := c.logger.Debug(); ev.Enabled() {
		ev.Str("service", service).
			Str("endpoint", c.config.Endpoint).
			Bytes("envelope", encodeEnvelope(service, redacted, params)).
			Msg("Executing Sherpa request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	action := Namespace + service
	httpReq.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+action+`"`)
	httpReq.Header.Set("SOAPAction", `"`+action+`"`)
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		requestsTotal.WithLabelValues(service, "network_error").Inc()
		return nil, c.fail(&SherpaError{Service: service, ErrorClass: ErrorClassNetwork, Err: err})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		requestsTotal.WithLabelValues(service, "network_error").Inc()
		return nil, c.fail(&SherpaError{
			Service:    service,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Err:        fmt.Errorf("read body: %w", err),
		})
	}

	requestsTotal.WithLabelValues(service, strconv.Itoa(resp.StatusCode)).Inc()

	result, flt, decodeErr := decodeResponse(data, service)

	if flt != nil {
		class := ErrorClassFault
		if flt.isSenderFault() {
			class = ErrorClassClient
		}
		return nil, c.fail(&SherpaError{
			Service:    service,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			FaultCode:  flt.Code,
			Message:    flt.Reason,
		})
	}

	if resp.StatusCode >= 400 {
		return nil, c.fail(&SherpaError{
			Service:    service,
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    resp.Status,
		})
	}

	if decodeErr != nil {
		return nil, c.fail(&SherpaError{
			Service:    service,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Err:        decodeErr,
		})
	}

	return result, nil
}

func (c *Client) fail(err *SherpaError) error {
	errorsTotal.WithLabelValues(string(err.ErrorClass)).Inc()
	c.logger.Warn().
		Str("service", err.Service).
		Int("status", err.StatusCode).
		Str("error_class", string(err.ErrorClass)).
		Str("fault_code", err.FaultCode).
		Err(err).
		Msg("Sherpa request error")
	return err
}

// Endpoint returns the service URL.
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger.With().Str("component", "sherpa-client").Logger()
}
