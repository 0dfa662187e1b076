package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tradewatch/market-gateway/pkg/breaker"
	"github.com/tradewatch/market-gateway/pkg/cache"
	"github.com/tradewatch/market-gateway/pkg/provider"
	"github.com/tradewatch/market-gateway/pkg/ratelimit"
)

// stubFetcher is a scriptable provider.Fetcher.
type stubFetcher struct {
	service  string
	endpoint string
	doc      json.RawMessage
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (f *stubFetcher) Service() string  { return f.service }
func (f *stubFetcher) Endpoint() string { return f.endpoint }

func (f *stubFetcher) Fetch(ctx context.Context) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

// testHarness bundles an aggregator with the collaborators the tests poke at.
type testHarness struct {
	agg     *Aggregator
	manager *cache.Manager
	breaker *breaker.CircuitBreaker
	limiter *ratelimit.Limiter
}

func newTestHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()

	manager := cache.NewManager(cache.NewMemoryStore(cache.MemoryConfig{
		MaxEntries: 256,
		DefaultTTL: time.Minute,
	}), nil)
	limiter := ratelimit.NewLimiter()
	cb := breaker.New()

	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}

	agg, err := New(manager, limiter, cb, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	return &testHarness{agg: agg, manager: manager, breaker: cb, limiter: limiter}
}

func pricePoint(name string, fetchers ...provider.Fetcher) DataPoint {
	return DataPoint{
		Name:        name,
		Key:         cache.Key("market", name),
		Strategy:    cache.RealTime,
		Chain:       fetchers,
		Placeholder: json.RawMessage(`{"price":0}`),
	}
}

func TestNew_Validation(t *testing.T) {
	manager := cache.NewManager(cache.NewMemoryStore(cache.DefaultMemoryConfig()), nil)
	limiter := ratelimit.NewLimiter()
	cb := breaker.New()

	okPoint := pricePoint("btc", &stubFetcher{service: "binance", endpoint: "/p", doc: json.RawMessage(`{}`)})

	tests := []struct {
		name    string
		manager *cache.Manager
		cfg     Config
		wantErr bool
	}{
		{"valid", manager, Config{Points: []DataPoint{okPoint}}, false},
		{"nil manager", nil, Config{Points: []DataPoint{okPoint}}, true},
		{"no points", manager, Config{}, true},
		{"unnamed point", manager, Config{Points: []DataPoint{{Key: "k", Chain: okPoint.Chain}}}, true},
		{"missing key", manager, Config{Points: []DataPoint{{Name: "x", Chain: okPoint.Chain}}}, true},
		{"empty chain", manager, Config{Points: []DataPoint{{Name: "x", Key: "k"}}}, true},
		{"duplicate names", manager, Config{Points: []DataPoint{okPoint, okPoint}}, true},
		{"summary caching without key", manager, Config{Points: []DataPoint{okPoint}, CacheSummary: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.manager, limiter, cb, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchSummary_AllPointsSucceed(t *testing.T) {
	btc := &stubFetcher{service: "binance", endpoint: "/price", doc: json.RawMessage(`{"symbol":"BTCUSDT","price":43000}`)}
	fng := &stubFetcher{service: "alternative_me", endpoint: "/fng/", doc: json.RawMessage(`{"value":54}`)}

	h := newTestHarness(t, Config{Points: []DataPoint{
		pricePoint("btc_price", btc),
		pricePoint("sentiment", fng),
	}})

	result, err := h.agg.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("FetchSummary failed: %v", err)
	}

	if result.PartialFailure {
		t.Error("PartialFailure = true, want false")
	}
	if result.RequestID == "" {
		t.Error("RequestID is empty")
	}
	if len(result.DataPoints) != 2 {
		t.Fatalf("DataPoints = %d, want 2", len(result.DataPoints))
	}

	pr := result.DataPoints["btc_price"]
	if pr.Status != StatusOK {
		t.Errorf("btc_price status = %q, want ok", pr.Status)
	}
	if pr.Source != "binance" {
		t.Errorf("btc_price source = %q, want binance", pr.Source)
	}
	if string(pr.Value) != `{"symbol":"BTCUSDT","price":43000}` {
		t.Errorf("btc_price value = %s", pr.Value)
	}
}

func TestFetchSummary_CacheHitSkipsProviders(t *testing.T) {
	fetcher := &stubFetcher{service: "binance", endpoint: "/price", doc: json.RawMessage(`{"price":1}`)}
	point := pricePoint("btc_price", fetcher)

	h := newTestHarness(t, Config{Points: []DataPoint{point}})

	if err := h.manager.SetWithStrategy(context.Background(), point.Key, json.RawMessage(`{"price":42}`), cache.RealTime); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result, err := h.agg.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("FetchSummary failed: %v", err)
	}

	pr := result.DataPoints["btc_price"]
	if pr.Source != "cache" {
		t.Errorf("source = %q, want cache", pr.Source)
	}
	if string(pr.Value) != `{"price":42}` {
		t.Errorf("value = %s, want seeded document", pr.Value)
	}
	if fetcher.calls.Load() != 0 {
		t.Errorf("provider calls = %d, want 0", fetcher.calls.Load())
	}
}

func TestFetchSummary_FallbackChain(t *testing.T) {
	primary := &stubFetcher{service: "binance", endpoint: "/price", err: errors.New("503")}
	secondary := &stubFetcher{service: "coingecko", endpoint: "/simple", doc: json.RawMessage(`{"price":43100}`)}

	h := newTestHarness(t, Config{Points: []DataPoint{
		pricePoint("btc_price", primary, secondary),
	}})

	result, err := h.agg.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("FetchSummary failed: %v", err)
	}

	pr := result.DataPoints["btc_price"]
	if pr.Status != StatusOK {
		t.Errorf("status = %q, want ok", pr.Status)
	}
	if pr.Source != "coingecko" {
		t.Errorf("source = %q, want coingecko", pr.Source)
	}
	if result.PartialFailure {
		t.Error("PartialFailure = true; a successful fallback is not a failure")
	}
	if primary.calls.Load() != 1 || secondary.calls.Load() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.calls.Load(), secondary.calls.Load())
	}
}

func TestFetchSummary_OpenCircuitSkipsProviderWithoutCall(t *testing.T) {
	primary := &stubFetcher{service: "binance", endpoint: "/price", doc: json.RawMessage(`{"price":1}`)}
	secondary := &stubFetcher{service: "coingecko", endpoint: "/simple", doc: json.RawMessage(`{"price":2}`)}

	h := newTestHarness(t, Config{Points: []DataPoint{
		pricePoint("btc_price", primary, secondary),
	}})

	// Trip the primary's circuit before aggregating
	_ = h.breaker.Configure("binance", breaker.Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
		ResetTimeout:     time.Minute,
	})
	h.breaker.RecordFailure("binance")

	result, err := h.agg.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("FetchSummary failed: %v", err)
	}

	if primary.calls.Load() != 0 {
		t.Errorf("primary calls = %d, want 0 (open circuit must not spend a call)", primary.calls.Load())
	}
	if secondary.calls.Load() != 1 {
		t.Errorf("secondary calls = %d, want 1", secondary.calls.Load())
	}
	pr := result.DataPoints["btc_price"]
	if pr.Source != "coingecko" || pr.Status != StatusOK {
		t.Errorf("point = %+v, want ok from coingecko", pr)
	}
}

func TestFetchSummary_ExhaustedChainServesStale(t *testing.T) {
	fetcher := &stubFetcher{service: "binance", endpoint: "/price", err: errors.New("down")}
	point := pricePoint("btc_price", fetcher)

	h := newTestHarness(t, Config{Points: []DataPoint{point}})

	// Only the stale twin is populated, as if an earlier fetch succeeded
	// and the fresh entry has since expired.
	if err := h.manager.SetWithStrategy(context.Background(), cache.StaleKey(point.Key), json.RawMessage(`{"price":41900}`), cache.LongTerm); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result, err := h.agg.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("FetchSummary failed: %v", err)
	}

	pr := result.DataPoints["btc_price"]
	if pr.Source != "stale" {
		t.Errorf("source = %q, want stale", pr.Source)
	}
	if pr.Status != StatusFailed {
		t.Errorf("status = %q, want failed", pr.Status)
	}
	if string(pr.Value) != `{"price":41900}` {
		t.Errorf("value = %s, want stale document", pr.Value)
	}
	if !result.PartialFailure {
		t.Error("PartialFailure = false, want true")
	}
}

func TestFetchSummary_ExhaustedChainServesPlaceholder(t *testing.T) {
	fetcher := &stubFetcher{service: "binance", endpoint: "/price", err: errors.New("down")}

	h := newTestHarness(t, Config{Points: []DataPoint{
		pricePoint("btc_price", fetcher),
	}})

	result, err := h.agg.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("FetchSummary returned error %v; degradation must not fail the request", err)
	}

	pr := result.DataPoints["btc_price"]
	if pr.Source != "placeholder" {
		t.Errorf("source = %q, want placeholder", pr.Source)
	}
	if pr.Status != StatusFailed {
		t.Errorf("status = %q, want failed", pr.Status)
	}
	if string(pr.Value) != `{"price":0}` {
		t.Errorf("value = %s, want neutral placeholder", pr.Value)
	}
	if !result.PartialFailure {
		t.Error("PartialFailure = false, want true")
	}
}

func TestFetchSummary_OnePointDownOthersUnaffected(t *testing.T) {
	broken := &stubFetcher{service: "binance", endpoint: "/price", err: errors.New("down")}
	healthy := &stubFetcher{service: "alternative_me", endpoint: "/fng/", doc: json.RawMessage(`{"value":54}`)}

	h := newTestHarness(t, Config{Points: []DataPoint{
		pricePoint("btc_price", broken),
		pricePoint("sentiment", healthy),
	}})

	result, err := h.agg.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("FetchSummary failed: %v", err)
	}

	if !result.PartialFailure {
		t.Error("PartialFailure = false, want true")
	}
	if result.DataPoints["btc_price"].Status == StatusOK {
		t.Error("btc_price resolved ok, want degraded")
	}
	if result.DataPoints["sentiment"].Status != StatusOK {
		t.Errorf("sentiment status = %q, want ok", result.DataPoints["sentiment"].Status)
	}
}

func TestFetchSummary_SlowPointTimesOut(t *testing.T) {
	slow := &stubFetcher{service: "binance", endpoint: "/price", doc: json.RawMessage(`{"price":1}`), delay: 5 * time.Second}

	h := newTestHarness(t, Config{
		Points:  []DataPoint{pricePoint("btc_price", slow)},
		Timeout: 100 * time.Millisecond,
	})

	start := time.Now()
	result, err := h.agg.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("FetchSummary failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("aggregation took %v, should be bounded by the fan-out timeout", elapsed)
	}

	pr := result.DataPoints["btc_price"]
	if pr.Status != StatusTimeout {
		t.Errorf("status = %q, want timeout", pr.Status)
	}
	if pr.Source != "placeholder" {
		t.Errorf("source = %q, want placeholder", pr.Source)
	}
	if !result.PartialFailure {
		t.Error("PartialFailure = false, want true")
	}
}

func TestFetchSummary_WritesThroughWithStaleCopy(t *testing.T) {
	fetcher := &stubFetcher{service: "binance", endpoint: "/price", doc: json.RawMessage(`{"price":43000}`)}
	point := pricePoint("btc_price", fetcher)

	h := newTestHarness(t, Config{Points: []DataPoint{point}})

	if _, err := h.agg.FetchSummary(context.Background()); err != nil {
		t.Fatalf("FetchSummary failed: %v", err)
	}

	ctx := context.Background()
	if _, err := h.manager.Get(ctx, point.Key); err != nil {
		t.Errorf("fresh entry missing after aggregation: %v", err)
	}
	if _, err := h.manager.Get(ctx, cache.StaleKey(point.Key)); err != nil {
		t.Errorf("stale copy missing after aggregation: %v", err)
	}
}

func TestFetchSummary_RecordsBreakerOutcomes(t *testing.T) {
	failing := &stubFetcher{service: "binance", endpoint: "/price", err: errors.New("down")}
	backup := &stubFetcher{service: "coingecko", endpoint: "/simple", doc: json.RawMessage(`{"price":1}`)}

	h := newTestHarness(t, Config{Points: []DataPoint{
		pricePoint("btc_price", failing, backup),
	}})

	_ = h.breaker.Configure("binance", breaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
		ResetTimeout:     time.Minute,
	})

	// Two aggregations, two failures: the second must trip the circuit.
	// Fresh entries are removed in between so the chain runs again.
	for i := 0; i < 2; i++ {
		if _, err := h.agg.FetchSummary(context.Background()); err != nil {
			t.Fatalf("FetchSummary failed: %v", err)
		}
		_ = h.manager.Remove(context.Background(), cache.Key("market", "btc_price"))
	}

	if state := h.breaker.State("binance"); state != breaker.StateOpen {
		t.Errorf("binance circuit = %v, want open after repeated failures", state)
	}
	if state := h.breaker.State("coingecko"); state != breaker.StateClosed {
		t.Errorf("coingecko circuit = %v, want closed after successes", state)
	}
}

func TestFetchSummary_CachesFullySuccessfulSummary(t *testing.T) {
	fetcher := &stubFetcher{service: "binance", endpoint: "/price", doc: json.RawMessage(`{"price":43000}`)}

	h := newTestHarness(t, Config{
		Points:       []DataPoint{pricePoint("btc_price", fetcher)},
		CacheSummary: true,
		SummaryKey:   cache.Key("market", "summary"),
	})

	first, err := h.agg.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("first FetchSummary failed: %v", err)
	}

	// The second call must come straight from the summary cache.
	second, err := h.agg.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("second FetchSummary failed: %v", err)
	}

	if second.RequestID != first.RequestID {
		t.Errorf("RequestID changed (%s -> %s), want cached result", first.RequestID, second.RequestID)
	}
	if fetcher.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", fetcher.calls.Load())
	}
}

func TestFetchSummary_PartialSummaryIsNotCached(t *testing.T) {
	fetcher := &stubFetcher{service: "binance", endpoint: "/price", err: errors.New("down")}
	summaryKey := cache.Key("market", "summary")

	h := newTestHarness(t, Config{
		Points:       []DataPoint{pricePoint("btc_price", fetcher)},
		CacheSummary: true,
		SummaryKey:   summaryKey,
	})

	result, err := h.agg.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("FetchSummary failed: %v", err)
	}
	if !result.PartialFailure {
		t.Fatal("expected a partial failure")
	}

	if _, err := h.manager.Get(context.Background(), summaryKey); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("summary cache read = %v, want ErrCacheMiss", err)
	}
}

func TestFetchPoint(t *testing.T) {
	fetcher := &stubFetcher{service: "binance", endpoint: "/price", doc: json.RawMessage(`{"price":43000}`)}
	point := pricePoint("btc_price", fetcher)

	h := newTestHarness(t, Config{Points: []DataPoint{point}})

	value, err := h.agg.FetchPoint(context.Background(), "btc_price")
	if err != nil {
		t.Fatalf("FetchPoint failed: %v", err)
	}
	if string(value) != `{"price":43000}` {
		t.Errorf("value = %s", value)
	}

	// Second read comes from the cache
	if _, err := h.agg.FetchPoint(context.Background(), "btc_price"); err != nil {
		t.Fatalf("second FetchPoint failed: %v", err)
	}
	if fetcher.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", fetcher.calls.Load())
	}

	// The stale twin is refreshed alongside the fresh entry
	if _, err := h.manager.Get(context.Background(), cache.StaleKey(point.Key)); err != nil {
		t.Errorf("stale copy missing after FetchPoint: %v", err)
	}
}

func TestFetchPoint_UnknownName(t *testing.T) {
	fetcher := &stubFetcher{service: "binance", endpoint: "/price", doc: json.RawMessage(`{}`)}
	h := newTestHarness(t, Config{Points: []DataPoint{pricePoint("btc_price", fetcher)}})

	_, err := h.agg.FetchPoint(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownPoint) {
		t.Errorf("error = %v, want ErrUnknownPoint", err)
	}
}

func TestFetchPoint_ExhaustedChainSurfacesError(t *testing.T) {
	fetcher := &stubFetcher{service: "binance", endpoint: "/price", err: errors.New("down")}
	h := newTestHarness(t, Config{Points: []DataPoint{pricePoint("btc_price", fetcher)}})

	_, err := h.agg.FetchPoint(context.Background(), "btc_price")
	if !errors.Is(err, ErrChainExhausted) {
		t.Errorf("error = %v, want ErrChainExhausted", err)
	}
}

func TestFetchPoint_StampedeCollapses(t *testing.T) {
	fetcher := &stubFetcher{
		service:  "binance",
		endpoint: "/price",
		doc:      json.RawMessage(`{"price":43000}`),
		delay:    50 * time.Millisecond,
	}
	h := newTestHarness(t, Config{Points: []DataPoint{pricePoint("btc_price", fetcher)}})

	const callers = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = h.agg.FetchPoint(context.Background(), "btc_price")
		}()
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if calls := fetcher.calls.Load(); calls != 1 {
		t.Errorf("provider calls = %d, want 1 (stampede must collapse)", calls)
	}
}

func TestStatistics(t *testing.T) {
	healthy := &stubFetcher{service: "binance", endpoint: "/price", doc: json.RawMessage(`{"price":1}`)}
	broken := &stubFetcher{service: "coingecko", endpoint: "/simple", err: errors.New("down")}

	h := newTestHarness(t, Config{Points: []DataPoint{
		pricePoint("good", healthy),
		pricePoint("bad", broken),
	}})

	if _, err := h.agg.FetchSummary(context.Background()); err != nil {
		t.Fatalf("FetchSummary failed: %v", err)
	}

	stats := h.agg.Statistics()
	if stats.TotalAggregations != 1 {
		t.Errorf("TotalAggregations = %d, want 1", stats.TotalAggregations)
	}
	if stats.PartialFailures != 1 {
		t.Errorf("PartialFailures = %d, want 1", stats.PartialFailures)
	}
	if stats.Successful != 0 {
		t.Errorf("Successful = %d, want 0", stats.Successful)
	}
}
