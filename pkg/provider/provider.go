// Package provider implements the upstream market-data fetchers that sit
// behind the aggregator's fallback chains.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for provider operations.
var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_provider_requests_total",
		Help: "Total upstream requests by provider and status",
	}, []string{"provider", "status"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_provider_request_duration_seconds",
		Help:    "Upstream request duration in seconds by provider",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"provider"})

	providerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_provider_errors_total",
		Help: "Total upstream errors by provider and class",
	}, []string{"provider", "class"})
)

const (
	// userAgent identifies the gateway to upstream APIs.
	userAgent = "market-gateway/1.0"

	// maxResponseBytes caps how much of an upstream body is read.
	maxResponseBytes = 1 << 20

	// maxPlausiblePrice is the ceiling above which a quoted price is
	// rejected as invalid.
	maxPlausiblePrice = 10_000_000

	// defaultTimeout applies when NewHTTPClient receives a non-positive
	// timeout.
	defaultTimeout = 10 * time.Second
)

// Fetcher retrieves one normalized market document from an upstream API.
//
// Service names the circuit the fetcher is tracked under; Endpoint names
// its rate limiter bucket. Fetch returns the normalized JSON document, or
// a *Error describing what went wrong.
type Fetcher interface {
	Service() string
	Endpoint() string
	Fetch(ctx context.Context) (json.RawMessage, error)
}

// PriceDoc is the normalized spot-price document. Every fetcher in a price
// fallback chain produces this shape, regardless of upstream.
type PriceDoc struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// TechnicalsDoc is the normalized 24h statistics document.
type TechnicalsDoc struct {
	Symbol         string  `json:"symbol"`
	PriceChangePct float64 `json:"price_change_pct"`
	High           float64 `json:"high"`
	Low            float64 `json:"low"`
	Volume         float64 `json:"volume"`
}

// GlobalDoc is the normalized market-overview document.
type GlobalDoc struct {
	MarketCapUSD    float64 `json:"market_cap_usd"`
	Volume24hUSD    float64 `json:"volume_24h_usd"`
	BTCDominancePct float64 `json:"btc_dominance_pct"`
}

// SentimentDoc is the normalized fear & greed document.
type SentimentDoc struct {
	Value          int    `json:"value"`
	Classification string `json:"classification"`
}

// NewHTTPClient returns the pooled HTTP client shared by all fetchers.
// Construct it once and inject it into every fetcher.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// getJSON executes a GET against an upstream and decodes the 200 body into
// out. Network failures, non-200 statuses, and undecodable bodies come back
// as *Error with the matching class.
func getJSON(ctx context.Context, client *http.Client, provider, url string, header http.Header, out any) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, vals := range header {
		req.Header[k] = append(req.Header[k], vals...)
	}

	start := time.Now()
	resp, err := client.Do(req)
	providerRequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	if err != nil {
		providerRequestsTotal.WithLabelValues(provider, "network_error").Inc()
		providerErrorsTotal.WithLabelValues(provider, string(ErrorClassNetwork)).Inc()
		return &Error{Provider: provider, Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	providerRequestsTotal.WithLabelValues(provider, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		class := classifyStatus(resp.StatusCode)
		providerErrorsTotal.WithLabelValues(provider, string(class)).Inc()
		return &Error{Provider: provider, StatusCode: resp.StatusCode, Class: class, Message: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		providerErrorsTotal.WithLabelValues(provider, string(ErrorClassNetwork)).Inc()
		return &Error{Provider: provider, StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Message: "read body", Err: err}
	}

	if err := json.Unmarshal(body, out); err != nil {
		providerErrorsTotal.WithLabelValues(provider, string(ErrorClassValidation)).Inc()
		return &Error{Provider: provider, StatusCode: resp.StatusCode, Class: ErrorClassValidation, Message: "decode response", Err: err}
	}

	return nil
}

// invalidf builds the validation error for a payload that decoded but
// failed its sanity bounds.
func invalidf(provider, format string, args ...any) error {
	providerErrorsTotal.WithLabelValues(provider, string(ErrorClassValidation)).Inc()
	return &Error{
		Provider: provider,
		Class:    ErrorClassValidation,
		Message:  fmt.Sprintf(format, args...),
		Err:      ErrInvalidResponse,
	}
}

// marshalDoc encodes a normalized document.
func marshalDoc(provider string, doc any) (json.RawMessage, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, &Error{Provider: provider, Class: ErrorClassValidation, Message: "encode document", Err: err}
	}
	return data, nil
}

// validPrice reports whether a quoted price sits inside the sanity bounds.
func validPrice(price float64) bool {
	return price > 0 && price < maxPlausiblePrice
}

// baseURL returns the configured base URL or the provider default.
func baseURL(configured, def string) string {
	if configured != "" {
		return configured
	}
	return def
}
