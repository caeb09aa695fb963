package parser

import (
	"fmt"
	"regexp"
	"strings"

	"devcamp/pkg/tokens"
	"devcamp/pkg/types"
)

// <amount> <sell> to|for|into <buy>, with an optional leading "swap" or "sell"
var swapPattern = regexp.MustCompile(`^(?:(?:SWAP|SELL)\s+)?(\d+\.?\d*|\.\d+)\s+([A-Z0-9.]+)\s+(?:TO|FOR|INTO)\s+([A-Z0-9.]+)$`)

// aliases maps native and common names onto the wrapped registry symbols
var aliases = map[string]string{
	"MATIC":  "WMATIC",
	"POL":    "WMATIC",
	"ETH":    "WETH",
	"BTC":    "WBTC",
	"USDC.E": "USDC",
}

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 10 WMATIC to USDC"
//   - "1.5 matic for usdc"
//   - "sell 100 USDC into DAI"
func ParseSwapCommand(command string) (*types.SwapRequest, error) {
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> to <token>' (e.g., 'swap 10 WMATIC to USDC')")
	}

	return &types.SwapRequest{
		Amount:    matches[1],
		SellToken: NormalizeTokenSymbol(matches[2]),
		BuyToken:  NormalizeTokenSymbol(matches[3]),
	}, nil
}

// ValidateSwapRequest validates that a swap request has all required fields
func ValidateSwapRequest(req *types.SwapRequest) error {
	if req.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if req.SellToken == "" {
		return fmt.Errorf("sell token is required")
	}
	if req.BuyToken == "" {
		return fmt.Errorf("buy token is required")
	}
	if req.SellToken == req.BuyToken {
		return fmt.Errorf("cannot swap %s for itself", req.SellToken)
	}
	return nil
}

// NormalizeTokenSymbol maps user input onto a registry symbol
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}
	return symbol
}

// Resolve looks both symbols up in the registry
func Resolve(req *types.SwapRequest, registry *tokens.Registry) (sell, buy tokens.Token, err error) {
	if err = ValidateSwapRequest(req); err != nil {
		return
	}
	if sell, err = registry.BySymbol(req.SellToken); err != nil {
		return
	}
	buy, err = registry.BySymbol(req.BuyToken)
	return
}
