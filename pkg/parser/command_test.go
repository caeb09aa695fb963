package parser

import (
	"testing"

	"devcamp/pkg/tokens"
	"devcamp/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSwapCommand(t *testing.T) {
	cases := []struct {
		in   string
		want types.SwapRequest
	}{
		{"swap 10 WMATIC to USDC", types.SwapRequest{Amount: "10", SellToken: "WMATIC", BuyToken: "USDC"}},
		{"1.5 matic for usdc", types.SwapRequest{Amount: "1.5", SellToken: "WMATIC", BuyToken: "USDC"}},
		{"  sell   100 USDC into dai ", types.SwapRequest{Amount: "100", SellToken: "USDC", BuyToken: "DAI"}},
		{"0.25 eth to btc", types.SwapRequest{Amount: "0.25", SellToken: "WETH", BuyToken: "WBTC"}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseSwapCommand(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, *got)
		})
	}
}

func TestParseSwapCommandRejects(t *testing.T) {
	for _, in := range []string{"", "swap WMATIC to USDC", "10 WMATIC", "ten WMATIC to USDC", "10 WMATIC USDC"} {
		_, err := ParseSwapCommand(in)
		assert.Error(t, err, in)
	}
}

func TestResolve(t *testing.T) {
	registry := tokens.ForChain(tokens.ChainPolygon)

	sell, buy, err := Resolve(&types.SwapRequest{Amount: "1", SellToken: "WMATIC", BuyToken: "USDC"}, registry)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), sell.Decimals)
	assert.Equal(t, uint8(6), buy.Decimals)

	_, _, err = Resolve(&types.SwapRequest{Amount: "1", SellToken: "USDC", BuyToken: "USDC"}, registry)
	assert.ErrorContains(t, err, "itself")

	_, _, err = Resolve(&types.SwapRequest{Amount: "1", SellToken: "SHIB", BuyToken: "USDC"}, registry)
	assert.ErrorContains(t, err, "not found")
}
