package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// binanceBaseURL is the public Binance spot API.
const binanceBaseURL = "https://api.binance.com"

// BinanceTicker fetches the current spot price for one symbol.
type BinanceTicker struct {
	Client  *http.Client
	BaseURL string // defaults to the public Binance API
	Symbol  string // e.g. "BTCUSDT"
}

// Service implements Fetcher.
func (b *BinanceTicker) Service() string { return "binance" }

// Endpoint implements Fetcher.
func (b *BinanceTicker) Endpoint() string { return "/api/v3/ticker/price" }

// Fetch implements Fetcher.
func (b *BinanceTicker) Fetch(ctx context.Context) (json.RawMessage, error) {
	var raw struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}

	u := baseURL(b.BaseURL, binanceBaseURL) + b.Endpoint() + "?symbol=" + url.QueryEscape(b.Symbol)
	if err := getJSON(ctx, b.Client, b.Service(), u, nil, &raw); err != nil {
		return nil, err
	}

	price, err := strconv.ParseFloat(raw.Price, 64)
	if err != nil {
		return nil, invalidf(b.Service(), "unparseable price %q", raw.Price)
	}
	if !validPrice(price) {
		return nil, invalidf(b.Service(), "price %.2f outside sanity bounds", price)
	}

	return marshalDoc(b.Service(), PriceDoc{Symbol: raw.Symbol, Price: price})
}

// Binance24h fetches 24-hour rolling statistics for one symbol.
type Binance24h struct {
	Client  *http.Client
	BaseURL string
	Symbol  string
}

// Service implements Fetcher.
func (b *Binance24h) Service() string { return "binance" }

// Endpoint implements Fetcher.
func (b *Binance24h) Endpoint() string { return "/api/v3/ticker/24hr" }

// Fetch implements Fetcher.
func (b *Binance24h) Fetch(ctx context.Context) (json.RawMessage, error) {
	var raw struct {
		Symbol             string `json:"symbol"`
		PriceChangePercent string `json:"priceChangePercent"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
		Volume             string `json:"volume"`
	}

	u := baseURL(b.BaseURL, binanceBaseURL) + b.Endpoint() + "?symbol=" + url.QueryEscape(b.Symbol)
	if err := getJSON(ctx, b.Client, b.Service(), u, nil, &raw); err != nil {
		return nil, err
	}

	parse := func(field, s string) (float64, error) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, invalidf(b.Service(), "unparseable %s %q", field, s)
		}
		return v, nil
	}

	changePct, err := parse("priceChangePercent", raw.PriceChangePercent)
	if err != nil {
		return nil, err
	}
	high, err := parse("highPrice", raw.HighPrice)
	if err != nil {
		return nil, err
	}
	low, err := parse("lowPrice", raw.LowPrice)
	if err != nil {
		return nil, err
	}
	volume, err := parse("volume", raw.Volume)
	if err != nil {
		return nil, err
	}

	if !validPrice(high) || !validPrice(low) || low > high {
		return nil, invalidf(b.Service(), "implausible range high=%.2f low=%.2f", high, low)
	}
	if volume < 0 {
		return nil, invalidf(b.Service(), "negative volume %.2f", volume)
	}

	return marshalDoc(b.Service(), TechnicalsDoc{
		Symbol:         raw.Symbol,
		PriceChangePct: changePct,
		High:           high,
		Low:            low,
		Volume:         volume,
	})
}
