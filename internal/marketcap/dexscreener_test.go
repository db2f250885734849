package marketcap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalwatch/internal/config"
)

func newPricingClient(baseURL string) *Client {
	return NewClient(&config.Config{
		PricingBaseURL: baseURL,
		PricingRPS:     100,
		PricingTimeout: 5 * time.Second,
	})
}

func TestLookupPicksHighestLiquiditySolanaPair(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/So1abc", r.URL.Path)
		fmt.Fprint(w, `{"pairs": [
			{"chainId": "ethereum", "baseToken": {"symbol": "WRONG"}, "marketCap": 1, "liquidity": {"usd": 9999999}},
			{"chainId": "solana", "baseToken": {"symbol": "PEPE"}, "marketCap": 45000, "liquidity": {"usd": 12000}, "priceUsd": "0.000045"},
			{"chainId": "solana", "baseToken": {"symbol": "PEPE2"}, "marketCap": 1000, "liquidity": {"usd": 200}}
		]}`)
	}))
	defer server.Close()

	data, err := newPricingClient(server.URL).Lookup(context.Background(), "So1abc")
	require.NoError(t, err)
	require.NotNil(t, data)

	assert.Equal(t, "PEPE", data.Symbol)
	require.NotNil(t, data.ValueUSD)
	assert.Equal(t, 45000.0, *data.ValueUSD)
	require.NotNil(t, data.LiquidityUSD)
	assert.Equal(t, 12000.0, *data.LiquidityUSD)
	require.NotNil(t, data.PriceUSD)
	assert.InDelta(t, 0.000045, *data.PriceUSD, 1e-9)
}

func TestLookupFallsBackToFDV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"pairs": [
			{"chainId": "solana", "baseToken": {"symbol": "PEPE"}, "fdv": 80000, "liquidity": {"usd": 5000}}
		]}`)
	}))
	defer server.Close()

	data, err := newPricingClient(server.URL).Lookup(context.Background(), "So1abc")
	require.NoError(t, err)
	require.NotNil(t, data)
	require.NotNil(t, data.ValueUSD)
	assert.Equal(t, 80000.0, *data.ValueUSD)
}

func TestLookupNoPairs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"pairs": []}`)
	}))
	defer server.Close()

	data, err := newPricingClient(server.URL).Lookup(context.Background(), "So1abc")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestLookupServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newPricingClient(server.URL).Lookup(context.Background(), "So1abc")
	assert.Error(t, err)
}
