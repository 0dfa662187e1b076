package cache

import "testing"

func TestKey(t *testing.T) {
	tests := []struct {
		name     string
		parts    []string
		expected string
	}{
		{
			name:     "domain provider window",
			parts:    []string{"price", "binance", "realtime"},
			expected: "price_binance_realtime",
		},
		{
			name:     "empty parts dropped",
			parts:    []string{"global", "", "coingecko"},
			expected: "global_coingecko",
		},
		{
			name:     "lowercased and space collapsed",
			parts:    []string{"Fear Greed", "Alternative"},
			expected: "fear_greed_alternative",
		},
		{
			name:     "single part",
			parts:    []string{"market_summary"},
			expected: "market_summary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.parts...); got != tt.expected {
				t.Errorf("Key(%v) = %q, want %q", tt.parts, got, tt.expected)
			}
		})
	}
}

func TestKey_Deterministic(t *testing.T) {
	first := Key("price", "binance", "realtime")
	second := Key("price", "binance", "realtime")
	if first != second {
		t.Errorf("Key not deterministic: %q != %q", first, second)
	}
}

func TestStaleKey(t *testing.T) {
	key := Key("price", "binance", "realtime")
	stale := StaleKey(key)

	if stale != "price_binance_realtime_stale" {
		t.Errorf("StaleKey = %q, want %q", stale, "price_binance_realtime_stale")
	}
	if !IsStaleKey(stale) {
		t.Errorf("IsStaleKey(%q) = false, want true", stale)
	}
	if IsStaleKey(key) {
		t.Errorf("IsStaleKey(%q) = true, want false", key)
	}
}
