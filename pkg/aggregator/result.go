package aggregator

import (
	"encoding/json"
	"time"
)

// Status describes how a data point resolved.
type Status string

const (
	// StatusOK means the point carries a fresh or cached document.
	StatusOK Status = "ok"

	// StatusFailed means every provider in the chain failed; the value is
	// a stale copy or the placeholder.
	StatusFailed Status = "failed"

	// StatusTimeout means the fan-out deadline expired before the chain
	// finished; the value is a stale copy or the placeholder.
	StatusTimeout Status = "timeout"
)

// PointResult is one resolved data point inside a Result.
type PointResult struct {
	Value  json.RawMessage `json:"value"`
	Source string          `json:"source"`
	Status Status          `json:"status"`
}

// Result is the merged outcome of one summary aggregation. PartialFailure
// marks results where at least one point fell back to a stale copy or
// placeholder; such results are still served.
type Result struct {
	RequestID       string                 `json:"request_id"`
	DataPoints      map[string]PointResult `json:"data_points"`
	PartialFailure  bool                   `json:"partial_failure"`
	FetchDurationMS int64                  `json:"fetch_duration_ms"`
	GeneratedAt     time.Time              `json:"generated_at"`
}
