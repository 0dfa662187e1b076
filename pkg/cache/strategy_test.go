package cache

import (
	"testing"
	"time"
)

func TestStrategy_TTL(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		expected time.Duration
	}{
		{"real time", RealTime, 30 * time.Second},
		{"short term", ShortTerm, 300 * time.Second},
		{"medium term", MediumTerm, 3600 * time.Second},
		{"long term", LongTerm, 10800 * time.Second},
		{"default", Default, 300 * time.Second},
		{"custom", Custom(42 * time.Second), 42 * time.Second},
		{"zero value behaves as default", Strategy{}, 300 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.strategy.TTL(); got != tt.expected {
				t.Errorf("TTL() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStrategy_String(t *testing.T) {
	if got := RealTime.String(); got != "real_time" {
		t.Errorf("String() = %q, want %q", got, "real_time")
	}
	if got := Custom(time.Second).String(); got != "custom" {
		t.Errorf("String() = %q, want %q", got, "custom")
	}
	if got := (Strategy{}).String(); got != "default" {
		t.Errorf("String() = %q, want %q for zero value", got, "default")
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Strategy
		wantErr  bool
	}{
		{"real_time", "real_time", RealTime, false},
		{"realtime alias", "realtime", RealTime, false},
		{"short_term", "short_term", ShortTerm, false},
		{"medium_term", "medium_term", MediumTerm, false},
		{"long_term", "long_term", LongTerm, false},
		{"default", "default", Default, false},
		{"empty means default", "", Default, false},
		{"unknown", "yearly", Strategy{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseStrategy(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStrategy(%q) failed: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseStrategy(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
