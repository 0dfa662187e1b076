package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// coinMarketCapBaseURL is the paid CoinMarketCap Pro API.
const coinMarketCapBaseURL = "https://pro-api.coinmarketcap.com"

// cmcAPIKeyHeader carries the CoinMarketCap API key. The non-canonical
// casing is what their documentation prescribes.
const cmcAPIKeyHeader = "X-CMC_PRO_API_KEY"

// CoinMarketCapQuote fetches the latest quote for one symbol from
// CoinMarketCap. It is the paid tertiary in price fallback chains.
type CoinMarketCapQuote struct {
	Client  *http.Client
	BaseURL string
	Symbol  string // e.g. "BTC"
	Convert string // quote currency, defaults to "USD"
	APIKey  string
}

// Service implements Fetcher.
func (c *CoinMarketCapQuote) Service() string { return "coinmarketcap" }

// Endpoint implements Fetcher.
func (c *CoinMarketCapQuote) Endpoint() string { return "/v1/cryptocurrency/quotes/latest" }

// Fetch implements Fetcher.
func (c *CoinMarketCapQuote) Fetch(ctx context.Context) (json.RawMessage, error) {
	convert := c.Convert
	if convert == "" {
		convert = "USD"
	}

	var raw struct {
		Status struct {
			ErrorCode    int    `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
		Data map[string]struct {
			Quote map[string]struct {
				Price float64 `json:"price"`
			} `json:"quote"`
		} `json:"data"`
	}

	u := fmt.Sprintf("%s%s?symbol=%s&convert=%s",
		baseURL(c.BaseURL, coinMarketCapBaseURL), c.Endpoint(),
		url.QueryEscape(c.Symbol), url.QueryEscape(convert))
	header := http.Header{cmcAPIKeyHeader: {c.APIKey}}
	if err := getJSON(ctx, c.Client, c.Service(), u, header, &raw); err != nil {
		return nil, err
	}

	// CMC reports application errors inside 200 bodies as well.
	if raw.Status.ErrorCode != 0 {
		return nil, &Error{
			Provider: c.Service(),
			Class:    ErrorClassClient,
			Message:  fmt.Sprintf("API error %d: %s", raw.Status.ErrorCode, raw.Status.ErrorMessage),
		}
	}

	coin, ok := raw.Data[c.Symbol]
	if !ok {
		return nil, invalidf(c.Service(), "no data for symbol %s", c.Symbol)
	}
	quote, ok := coin.Quote[convert]
	if !ok {
		return nil, invalidf(c.Service(), "no %s quote for symbol %s", convert, c.Symbol)
	}
	if !validPrice(quote.Price) {
		return nil, invalidf(c.Service(), "price %.2f outside sanity bounds", quote.Price)
	}

	return marshalDoc(c.Service(), PriceDoc{Symbol: c.Symbol, Price: quote.Price})
}
