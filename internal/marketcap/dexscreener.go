package marketcap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"signalwatch/internal/config"
	"signalwatch/internal/ratelimit"
)

// TokenData is a live pricing snapshot for a contract.
type TokenData struct {
	Symbol       string
	ValueUSD     *float64
	LiquidityUSD *float64
	PriceUSD     *float64
}

// Client fetches live token data from the DexScreener public API. No
// authentication required; requests are rate limited client-side.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewClient creates a pricing client from configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    cfg.PricingBaseURL,
		httpClient: &http.Client{Timeout: cfg.PricingTimeout},
		limiter:    ratelimit.New(cfg.PricingRPS),
	}
}

type pairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	} `json:"baseToken"`
	MarketCap *float64 `json:"marketCap"`
	FDV       *float64 `json:"fdv"`
	Liquidity struct {
		USD *float64 `json:"usd"`
	} `json:"liquidity"`
	PriceUSD string `json:"priceUsd"`
}

// Lookup fetches token data for a contract address. Returns (nil, nil) when
// the API knows no pairs for the contract.
func (c *Client) Lookup(ctx context.Context, contract string) (*TokenData, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	url := c.baseURL + "/latest/dex/tokens/" + contract
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var decoded pairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	main := pickPair(decoded.Pairs)
	if main == nil {
		return nil, nil
	}

	data := &TokenData{
		Symbol:       main.BaseToken.Symbol,
		LiquidityUSD: main.Liquidity.USD,
	}
	if data.Symbol == "" {
		data.Symbol = main.BaseToken.Name
	}

	// Prefer marketCap, fall back to fully diluted valuation.
	if main.MarketCap != nil {
		data.ValueUSD = main.MarketCap
	} else {
		data.ValueUSD = main.FDV
	}

	if main.PriceUSD != "" {
		if price, err := strconv.ParseFloat(main.PriceUSD, 64); err == nil {
			data.PriceUSD = &price
		}
	}

	return data, nil
}

// pickPair selects the Solana pair with the highest liquidity; falls back to
// the first Solana pair, then the first pair of any chain.
func pickPair(pairs []pair) *pair {
	var main *pair
	maxLiquidity := 0.0
	for i := range pairs {
		p := &pairs[i]
		if p.ChainID != "solana" {
			continue
		}
		liq := 0.0
		if p.Liquidity.USD != nil {
			liq = *p.Liquidity.USD
		}
		if liq > maxLiquidity {
			maxLiquidity = liq
			main = p
		}
	}
	if main != nil {
		return main
	}

	for i := range pairs {
		if pairs[i].ChainID == "solana" {
			return &pairs[i]
		}
	}
	if len(pairs) > 0 {
		return &pairs[0]
	}
	return nil
}
