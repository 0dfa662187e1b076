package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
)

// alternativeMeBaseURL serves the crypto fear & greed index.
const alternativeMeBaseURL = "https://api.alternative.me"

// FearGreedIndex fetches the current fear & greed index from alternative.me.
type FearGreedIndex struct {
	Client  *http.Client
	BaseURL string
}

// Service implements Fetcher.
func (f *FearGreedIndex) Service() string { return "alternative_me" }

// Endpoint implements Fetcher.
func (f *FearGreedIndex) Endpoint() string { return "/fng/" }

// Fetch implements Fetcher.
func (f *FearGreedIndex) Fetch(ctx context.Context) (json.RawMessage, error) {
	var raw struct {
		Data []struct {
			Value          string `json:"value"`
			Classification string `json:"value_classification"`
		} `json:"data"`
	}

	u := baseURL(f.BaseURL, alternativeMeBaseURL) + f.Endpoint()
	if err := getJSON(ctx, f.Client, f.Service(), u, nil, &raw); err != nil {
		return nil, err
	}

	if len(raw.Data) == 0 {
		return nil, invalidf(f.Service(), "empty data array")
	}

	value, err := strconv.Atoi(raw.Data[0].Value)
	if err != nil {
		return nil, invalidf(f.Service(), "unparseable index value %q", raw.Data[0].Value)
	}
	if value < 0 || value > 100 {
		return nil, invalidf(f.Service(), "index value %d outside 0-100", value)
	}

	return marshalDoc(f.Service(), SentimentDoc{
		Value:          value,
		Classification: raw.Data[0].Classification,
	})
}
