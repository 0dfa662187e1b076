// Package testutil provides testing utilities for the market gateway.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock upstream endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable mock market-data server. One instance can
// impersonate any provider; point a fetcher's BaseURL at URL().
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	requestCount      int
	pathCounts        map[string]int
	lastRequestHeader http.Header
}

// NewMockUpstream creates a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if resp.Headers["Content-Type"] == "" {
			w.Header().Set("Content-Type", "application/json")
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the total number of requests served.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetPathCount returns the number of requests served for one path.
func (m *MockUpstream) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockUpstream) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// defaultHandler answers paths without a configured handler.
func (m *MockUpstream) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

// NewTickerResponse builds a Binance ticker/price payload.
func NewTickerResponse(symbol string, price float64) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"symbol":%q,"price":"%.8f"}`, symbol, price),
	}
}

// New24hResponse builds a Binance ticker/24hr payload.
func New24hResponse(symbol string, changePct, high, low, volume float64) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: fmt.Sprintf(
			`{"symbol":%q,"priceChangePercent":"%.3f","highPrice":"%.2f","lowPrice":"%.2f","volume":"%.3f"}`,
			symbol, changePct, high, low, volume),
	}
}

// NewSimplePriceResponse builds a CoinGecko simple/price payload.
func NewSimplePriceResponse(id, vsCurrency string, price float64) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{%q:{%q:%.2f}}`, id, vsCurrency, price),
	}
}

// NewGlobalResponse builds a CoinGecko global payload.
func NewGlobalResponse(marketCapUSD, volumeUSD, btcDominance float64) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: fmt.Sprintf(
			`{"data":{"total_market_cap":{"usd":%.0f},"total_volume":{"usd":%.0f},"market_cap_percentage":{"btc":%.2f}}}`,
			marketCapUSD, volumeUSD, btcDominance),
	}
}

// NewQuoteResponse builds a CoinMarketCap quotes/latest payload.
func NewQuoteResponse(symbol string, price float64) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: fmt.Sprintf(
			`{"status":{"error_code":0},"data":{%q:{"quote":{"USD":{"price":%.2f}}}}}`,
			symbol, price),
	}
}

// NewFearGreedResponse builds an alternative.me /fng/ payload.
func NewFearGreedResponse(value int, classification string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: fmt.Sprintf(
			`{"name":"Fear and Greed Index","data":[{"value":"%d","value_classification":%q}]}`,
			value, classification),
	}
}

// NewServerErrorResponse builds a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
	}
}

// NewRateLimitResponse builds a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
	}
}

// NewFlakyHandler fails the first n requests with failStatus, then serves ok.
func NewFlakyHandler(n int, failStatus int, ok MockResponse) func(w http.ResponseWriter, r *http.Request) {
	var mu sync.Mutex
	attempts := 0

	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		failing := attempts <= n
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if failing {
			w.WriteHeader(failStatus)
			w.Write([]byte(`{"error": "upstream unavailable"}`))
			return
		}

		w.WriteHeader(ok.StatusCode)
		w.Write([]byte(ok.Body))
	}
}
