package client

import (
	"fmt"
	"math/big"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
)

// Params is the query shared by the price and quote endpoints
type Params struct {
	SellToken  common.Address
	BuyToken   common.Address
	SellAmount *big.Int
	// Taker is optional for prices and required for executable quotes
	Taker common.Address
}

// Validate checks the tuple before it goes on the wire
func (p Params) Validate() error {
	if p.SellToken == (common.Address{}) {
		return fmt.Errorf("sell token is required")
	}
	if p.BuyToken == (common.Address{}) {
		return fmt.Errorf("buy token is required")
	}
	if p.SellToken == p.BuyToken {
		return fmt.Errorf("sell and buy token must differ")
	}
	if p.SellAmount == nil || p.SellAmount.Sign() <= 0 {
		return fmt.Errorf("sell amount must be greater than 0")
	}
	return nil
}

// Values encodes the params as sellToken/buyToken/sellAmount/takerAddress
func (p Params) Values() url.Values {
	v := url.Values{}
	v.Set("sellToken", p.SellToken.Hex())
	v.Set("buyToken", p.BuyToken.Hex())
	v.Set("sellAmount", amountString(p.SellAmount))
	if p.Taker != (common.Address{}) {
		v.Set("takerAddress", p.Taker.Hex())
	}
	return v
}

// ValidationError is one entry of an aggregator's validationErrors list
type ValidationError struct {
	Field       string `json:"field"`
	Code        int64  `json:"code"`
	Reason      string `json:"reason"`
	Description string `json:"description,omitempty"`
}

func (v ValidationError) String() string {
	if v.Field == "" {
		return v.Reason
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

// PriceResponse is an indicative, non-binding price
type PriceResponse struct {
	ChainID          int64             `json:"chainId,omitempty"`
	Price            string            `json:"price"`
	EstimatedGas     string            `json:"estimatedGas,omitempty"`
	Gas              string            `json:"gas,omitempty"`
	GasPrice         string            `json:"gasPrice,omitempty"`
	BuyAmount        string            `json:"buyAmount"`
	SellAmount       string            `json:"sellAmount"`
	BuyTokenAddress  common.Address    `json:"buyTokenAddress"`
	SellTokenAddress common.Address    `json:"sellTokenAddress"`
	AllowanceTarget  common.Address    `json:"allowanceTarget,omitempty"`
	ValidationErrors []ValidationError `json:"validationErrors,omitempty"`
}

// QuoteResponse is a firm quote carrying executable transaction fields
type QuoteResponse struct {
	ChainID          int64          `json:"chainId,omitempty"`
	Price            string         `json:"price"`
	GuaranteedPrice  string         `json:"guaranteedPrice,omitempty"`
	To               common.Address `json:"to"`
	Data             string         `json:"data"`
	Value            string         `json:"value"`
	Gas              string         `json:"gas"`
	GasPrice         string         `json:"gasPrice"`
	BuyAmount        string         `json:"buyAmount"`
	SellAmount       string         `json:"sellAmount"`
	BuyTokenAddress  common.Address `json:"buyTokenAddress"`
	SellTokenAddress common.Address `json:"sellTokenAddress"`
	AllowanceTarget  common.Address `json:"allowanceTarget,omitempty"`
}
