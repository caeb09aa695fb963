package client

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	wmatic = common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270")
	usdc   = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	taker  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func tenWMATIC() *big.Int {
	v, _ := new(big.Int).SetString("10000000000000000000", 10)
	return v
}

func TestPriceSendsQueryAndKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/v1/price", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("0x-api-key"))
		q := r.URL.Query()
		assert.Equal(t, wmatic.Hex(), q.Get("sellToken"))
		assert.Equal(t, usdc.Hex(), q.Get("buyToken"))
		assert.Equal(t, "10000000000000000000", q.Get("sellAmount"))
		assert.Equal(t, taker.Hex(), q.Get("takerAddress"))
		_, _ = w.Write([]byte(`{"price":"0.95","buyAmount":"9500000","sellAmount":"10000000000000000000",` +
			`"buyTokenAddress":"` + usdc.Hex() + `","sellTokenAddress":"` + wmatic.Hex() + `"}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, APIKey: "test-key"})
	resp, err := c.Price(context.Background(), Params{SellToken: wmatic, BuyToken: usdc, SellAmount: tenWMATIC(), Taker: taker})
	require.NoError(t, err)
	assert.Equal(t, "9500000", resp.BuyAmount)
	assert.Equal(t, wmatic, resp.SellTokenAddress)
	assert.Empty(t, resp.ValidationErrors)
}

func TestPriceValidationErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":100,"reason":"Validation Failed","validationErrors":[` +
			`{"field":"sellAmount","code":1004,"reason":"INSUFFICIENT_ASSET_LIQUIDITY"}]}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	_, err := c.Price(context.Background(), Params{SellToken: wmatic, BuyToken: usdc, SellAmount: big.NewInt(1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Len(t, apiErr.ValidationErrors, 1)
	assert.Equal(t, "sellAmount", apiErr.ValidationErrors[0].Field)
	assert.Contains(t, err.Error(), "INSUFFICIENT_ASSET_LIQUIDITY")
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	_, err := c.Price(context.Background(), Params{SellToken: wmatic, BuyToken: usdc, SellAmount: big.NewInt(1)})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "upstream down")
}

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/v1/quote", r.URL.Path)
		_, _ = w.Write([]byte(`{"to":"0xDef1C0ded9bec7F1a1670819833240f027b25EfF","data":"0xd9627aa4","value":"0",` +
			`"gas":"210000","gasPrice":"30000000000","buyAmount":"9500000","sellAmount":"10000000000000000000",` +
			`"buyTokenAddress":"` + usdc.Hex() + `","sellTokenAddress":"` + wmatic.Hex() + `"}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	q, err := c.Quote(context.Background(), Params{SellToken: wmatic, BuyToken: usdc, SellAmount: tenWMATIC(), Taker: taker})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xDef1C0ded9bec7F1a1670819833240f027b25EfF"), q.To)
	assert.Equal(t, "210000", q.Gas)
}

func TestQuoteMissingTransactionFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"buyAmount":"1"}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	_, err := c.Quote(context.Background(), Params{SellToken: wmatic, BuyToken: usdc, SellAmount: big.NewInt(1)})
	assert.ErrorContains(t, err, "missing transaction fields")
}

func TestParamsValidate(t *testing.T) {
	assert.Error(t, Params{BuyToken: usdc, SellAmount: big.NewInt(1)}.Validate())
	assert.Error(t, Params{SellToken: wmatic, SellAmount: big.NewInt(1)}.Validate())
	assert.Error(t, Params{SellToken: wmatic, BuyToken: wmatic, SellAmount: big.NewInt(1)}.Validate())
	assert.Error(t, Params{SellToken: wmatic, BuyToken: usdc, SellAmount: big.NewInt(0)}.Validate())
	assert.NoError(t, Params{SellToken: wmatic, BuyToken: usdc, SellAmount: big.NewInt(1)}.Validate())

	v := Params{SellToken: wmatic, BuyToken: usdc, SellAmount: big.NewInt(5)}.Values()
	assert.False(t, v.Has("takerAddress"))
}

func TestRequestHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(Options{BaseURL: srv.URL})
	_, err := c.Price(ctx, Params{SellToken: wmatic, BuyToken: usdc, SellAmount: big.NewInt(1)})
	assert.ErrorIs(t, err, context.Canceled)
}
