package tokens

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
)

const (
	ChainEthereum     int64 = 1
	ChainPolygon      int64 = 137
	ChainZkEVMCardona int64 = 2442
)

// PolygonExchangeProxy is the 0x exchange proxy that executes swaps once approved.
var PolygonExchangeProxy = common.HexToAddress("0xDef1C0ded9bec7F1a1670819833240f027b25EfF")

// Token is a static entry of the supported token list
type Token struct {
	ChainID  int64
	Symbol   string
	Name     string
	Address  common.Address
	Decimals uint8
	LogoURI  string
}

// PolygonTokens is the selectable list on Polygon mainnet
var PolygonTokens = []Token{
	{
		ChainID:  ChainPolygon,
		Symbol:   "WMATIC",
		Name:     "Wrapped Matic",
		Address:  common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"),
		Decimals: 18,
		LogoURI:  "https://raw.githubusercontent.com/maticnetwork/polygon-token-assets/main/assets/tokenAssets/matic.svg",
	},
	{
		ChainID:  ChainPolygon,
		Symbol:   "USDC",
		Name:     "USD Coin",
		Address:  common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
		Decimals: 6,
		LogoURI:  "https://raw.githubusercontent.com/maticnetwork/polygon-token-assets/main/assets/tokenAssets/usdc.svg",
	},
	{
		ChainID:  ChainPolygon,
		Symbol:   "USDT",
		Name:     "Tether USD",
		Address:  common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F"),
		Decimals: 6,
		LogoURI:  "https://raw.githubusercontent.com/maticnetwork/polygon-token-assets/main/assets/tokenAssets/usdt.svg",
	},
	{
		ChainID:  ChainPolygon,
		Symbol:   "DAI",
		Name:     "Dai Stablecoin",
		Address:  common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063"),
		Decimals: 18,
		LogoURI:  "https://raw.githubusercontent.com/maticnetwork/polygon-token-assets/main/assets/tokenAssets/dai.svg",
	},
	{
		ChainID:  ChainPolygon,
		Symbol:   "WETH",
		Name:     "Wrapped Ether",
		Address:  common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"),
		Decimals: 18,
		LogoURI:  "https://raw.githubusercontent.com/maticnetwork/polygon-token-assets/main/assets/tokenAssets/weth.svg",
	},
	{
		ChainID:  ChainPolygon,
		Symbol:   "WBTC",
		Name:     "Wrapped BTC",
		Address:  common.HexToAddress("0x1BFD67037B42Cf73acF2047067bd4F2C47D9BfD6"),
		Decimals: 8,
		LogoURI:  "https://raw.githubusercontent.com/maticnetwork/polygon-token-assets/main/assets/tokenAssets/wbtc.svg",
	},
}

var (
	polygonBySymbol  = lo.KeyBy(PolygonTokens, func(t Token) string { return strings.ToLower(t.Symbol) })
	polygonByAddress = lo.KeyBy(PolygonTokens, func(t Token) common.Address { return t.Address })
)

// Registry resolves tokens for one chain. Unknown chains fall back to
// Polygon, the only chain with a token list.
type Registry struct {
	chainID   int64
	list      []Token
	bySymbol  map[string]Token
	byAddress map[common.Address]Token
}

// ForChain returns the registry for chainID
func ForChain(chainID int64) *Registry {
	return &Registry{
		chainID:   chainID,
		list:      PolygonTokens,
		bySymbol:  polygonBySymbol,
		byAddress: polygonByAddress,
	}
}

// List returns the tokens in display order
func (r *Registry) List() []Token {
	return append([]Token(nil), r.list...)
}

// BySymbol looks a token up case-insensitively
func (r *Registry) BySymbol(symbol string) (Token, error) {
	tok, ok := r.bySymbol[strings.ToLower(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, fmt.Errorf("token '%s' not found", symbol)
	}
	return tok, nil
}

// ByAddress looks a token up by contract address
func (r *Registry) ByAddress(addr common.Address) (Token, bool) {
	tok, ok := r.byAddress[addr]
	return tok, ok
}

// Symbols returns the supported symbols in display order
func (r *Registry) Symbols() []string {
	return lo.Map(r.list, func(t Token, _ int) string { return t.Symbol })
}

// ExchangeProxy returns the spender that must be approved before swapping
func ExchangeProxy(chainID int64) common.Address {
	// 0x deploys the proxy at the same address on every supported chain
	return PolygonExchangeProxy
}

// ChainName returns a display name for the chains the app knows about
func ChainName(chainID int64) string {
	switch chainID {
	case ChainEthereum:
		return "Ethereum"
	case ChainPolygon:
		return "Polygon"
	case ChainZkEVMCardona:
		return "Polygon zkEVM Cardona"
	default:
		return fmt.Sprintf("chain %d", chainID)
	}
}

// ExplorerTxURL builds a transaction link. base overrides the per-chain default.
func ExplorerTxURL(chainID int64, base string, txHash string) string {
	if base == "" {
		switch chainID {
		case ChainEthereum:
			base = "https://etherscan.io"
		case ChainZkEVMCardona:
			base = "https://cardona-zkevm.polygonscan.com"
		default:
			base = "https://polygonscan.com"
		}
	}
	return strings.TrimRight(base, "/") + "/tx/" + txHash
}
