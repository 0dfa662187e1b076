package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// coinGeckoBaseURL is the free CoinGecko API.
const coinGeckoBaseURL = "https://api.coingecko.com"

// CoinGeckoPrice fetches the simple price for one coin id.
type CoinGeckoPrice struct {
	Client     *http.Client
	BaseURL    string
	ID         string // e.g. "bitcoin"
	VsCurrency string // e.g. "usd"
}

// Service implements Fetcher.
func (c *CoinGeckoPrice) Service() string { return "coingecko" }

// Endpoint implements Fetcher.
func (c *CoinGeckoPrice) Endpoint() string { return "/api/v3/simple/price" }

// Fetch implements Fetcher.
func (c *CoinGeckoPrice) Fetch(ctx context.Context) (json.RawMessage, error) {
	raw := map[string]map[string]float64{}

	u := fmt.Sprintf("%s%s?ids=%s&vs_currencies=%s",
		baseURL(c.BaseURL, coinGeckoBaseURL), c.Endpoint(),
		url.QueryEscape(c.ID), url.QueryEscape(c.VsCurrency))
	if err := getJSON(ctx, c.Client, c.Service(), u, nil, &raw); err != nil {
		return nil, err
	}

	price, ok := raw[c.ID][c.VsCurrency]
	if !ok {
		return nil, invalidf(c.Service(), "no %s/%s quote in response", c.ID, c.VsCurrency)
	}
	if !validPrice(price) {
		return nil, invalidf(c.Service(), "price %.2f outside sanity bounds", price)
	}

	return marshalDoc(c.Service(), PriceDoc{Symbol: c.ID, Price: price})
}

// CoinGeckoGlobal fetches the global market overview.
type CoinGeckoGlobal struct {
	Client  *http.Client
	BaseURL string
}

// Service implements Fetcher.
func (c *CoinGeckoGlobal) Service() string { return "coingecko" }

// Endpoint implements Fetcher.
func (c *CoinGeckoGlobal) Endpoint() string { return "/api/v3/global" }

// Fetch implements Fetcher.
func (c *CoinGeckoGlobal) Fetch(ctx context.Context) (json.RawMessage, error) {
	var raw struct {
		Data struct {
			TotalMarketCap      map[string]float64 `json:"total_market_cap"`
			TotalVolume         map[string]float64 `json:"total_volume"`
			MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
		} `json:"data"`
	}

	u := baseURL(c.BaseURL, coinGeckoBaseURL) + c.Endpoint()
	if err := getJSON(ctx, c.Client, c.Service(), u, nil, &raw); err != nil {
		return nil, err
	}

	marketCap := raw.Data.TotalMarketCap["usd"]
	volume := raw.Data.TotalVolume["usd"]
	dominance := raw.Data.MarketCapPercentage["btc"]

	if marketCap <= 0 {
		return nil, invalidf(c.Service(), "implausible market cap %.0f", marketCap)
	}
	if volume < 0 {
		return nil, invalidf(c.Service(), "negative volume %.0f", volume)
	}
	if dominance < 0 || dominance > 100 {
		return nil, invalidf(c.Service(), "btc dominance %.2f outside 0-100", dominance)
	}

	return marshalDoc(c.Service(), GlobalDoc{
		MarketCapUSD:    marketCap,
		Volume24hUSD:    volume,
		BTCDominancePct: dominance,
	})
}
