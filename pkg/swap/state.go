package swap

import (
	"math/big"

	"devcamp/pkg/client"
	"devcamp/pkg/tokens"
	"devcamp/pkg/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Stage names a variant of State
type Stage string

const (
	StageEditing      Stage = "editing"
	StagePriceLoading Stage = "price_loading"
	StagePriceReady   Stage = "price_ready"
	StageQuoteLoading Stage = "quote_loading"
	StageFinalizing   Stage = "finalizing"
	StageSubmitting   Stage = "submitting"
	StageConfirming   Stage = "confirming"
	StageConfirmed    Stage = "confirmed"
)

// State is one stage of the swap flow. Each variant carries only the data
// valid in that stage.
type State interface {
	Stage() Stage
	form() Form
}

// Form is the user's editable selection
type Form struct {
	SellToken  tokens.Token
	BuyToken   tokens.Token
	SellAmount string
}

// SellAmountUnits parses the sell amount with the sell token's decimals
func (f Form) SellAmountUnits() (*big.Int, error) {
	return units.Parse(f.SellAmount, f.SellToken.Decimals)
}

// Price is an indicative price that still matches the form it was fetched for
type Price struct {
	Params    client.Params
	BuyAmount *big.Int
	Response  *client.PriceResponse
}

// SellTokenAddress prefers the address the aggregator echoed back
func (p *Price) SellTokenAddress() common.Address {
	if p.Response != nil && p.Response.SellTokenAddress != (common.Address{}) {
		return p.Response.SellTokenAddress
	}
	return p.Params.SellToken
}

// BuyTokenAddress prefers the address the aggregator echoed back
func (p *Price) BuyTokenAddress() common.Address {
	if p.Response != nil && p.Response.BuyTokenAddress != (common.Address{}) {
		return p.Response.BuyTokenAddress
	}
	return p.Params.BuyToken
}

// SellAmount prefers the amount the aggregator echoed back
func (p *Price) SellAmount() *big.Int {
	if p.Response != nil {
		if n, err := units.ParseString(p.Response.SellAmount); err == nil {
			return n
		}
	}
	return p.Params.SellAmount
}

// Editing accepts form input. Price is set only when returning from review
// with the form unchanged.
type Editing struct {
	Form  Form
	Price *Price
}

// PriceLoading waits for the price request numbered Seq
type PriceLoading struct {
	Form Form
	Seq  uint64
}

type PriceReady struct {
	Form  Form
	Price *Price
}

type QuoteLoading struct {
	Form  Form
	Price *Price
}

// Finalizing shows a firm quote awaiting Place Order
type Finalizing struct {
	Form  Form
	Price *Price
	Quote *client.QuoteResponse
}

// Submitting signs and broadcasts the quote's transaction
type Submitting struct {
	Form  Form
	Price *Price
	Quote *client.QuoteResponse
}

// Confirming polls the receipt of a broadcast swap
type Confirming struct {
	Form   Form
	Quote  *client.QuoteResponse
	TxHash common.Hash
}

// Confirmed is terminal
type Confirmed struct {
	Form    Form
	Quote   *client.QuoteResponse
	TxHash  common.Hash
	Receipt *types.Receipt
}

func (s Editing) Stage() Stage      { return StageEditing }
func (s PriceLoading) Stage() Stage { return StagePriceLoading }
func (s PriceReady) Stage() Stage   { return StagePriceReady }
func (s QuoteLoading) Stage() Stage { return StageQuoteLoading }
func (s Finalizing) Stage() Stage   { return StageFinalizing }
func (s Submitting) Stage() Stage   { return StageSubmitting }
func (s Confirming) Stage() Stage   { return StageConfirming }
func (s Confirmed) Stage() Stage    { return StageConfirmed }

func (s Editing) form() Form      { return s.Form }
func (s PriceLoading) form() Form { return s.Form }
func (s PriceReady) form() Form   { return s.Form }
func (s QuoteLoading) form() Form { return s.Form }
func (s Finalizing) form() Form   { return s.Form }
func (s Submitting) form() Form   { return s.Form }
func (s Confirming) form() Form   { return s.Form }
func (s Confirmed) form() Form    { return s.Form }

// editable reports whether form events are accepted in s
func editable(s State) bool {
	switch s.(type) {
	case Editing, PriceLoading, PriceReady:
		return true
	}
	return false
}

// currentPrice returns the price usable for review, if any
func currentPrice(s State) *Price {
	switch st := s.(type) {
	case Editing:
		return st.Price
	case PriceReady:
		return st.Price
	}
	return nil
}
