package swap

import (
	"math/big"

	"devcamp/pkg/client"
	"devcamp/pkg/units"

	"github.com/ethereum/go-ethereum/common"
)

// Action is the primary control shown below the form
type Action string

const (
	ActionNone                Action = ""
	ActionApprove             Action = "Approve"
	ActionApproving           Action = "Approving..."
	ActionInsufficientBalance Action = "Insufficient Balance"
	ActionReviewTrade         Action = "Review Trade"
	ActionPlaceOrder          Action = "Place Order"
	ActionConfirming          Action = "Confirming..."
)

// View is a consistent snapshot of everything a front end renders
type View struct {
	Stage Stage
	Form  Form

	// BuyAmount is the formatted estimate, empty until a price applies
	BuyAmount string
	Price     *Price
	Quote     *client.QuoteResponse

	Balance   *big.Int
	Allowance *big.Int

	Action        Action
	ActionEnabled bool
	CanModify     bool

	ApprovalPending bool
	ApprovalTx      common.Hash
	TxHash          common.Hash

	ValidationErrors []client.ValidationError
	Err              error
}

// View computes the current snapshot
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	form := c.state.form()
	v := View{
		Stage:            c.state.Stage(),
		Form:             form,
		Balance:          copyInt(c.acct.balance),
		Allowance:        copyInt(c.acct.allowance),
		ApprovalPending:  c.approving,
		ApprovalTx:       c.approvalTx,
		ValidationErrors: append([]client.ValidationError(nil), c.validation...),
		Err:              c.lastErr,
	}

	switch st := c.state.(type) {
	case Editing:
		v.Price = st.Price
		v.Action, v.ActionEnabled = c.formActionLocked(form)
	case PriceLoading:
		v.Action, v.ActionEnabled = c.formActionLocked(form)
		// nothing to review until the price lands
		if v.Action == ActionReviewTrade {
			v.ActionEnabled = false
		}
	case PriceReady:
		v.Price = st.Price
		v.Action, v.ActionEnabled = c.formActionLocked(form)
	case QuoteLoading:
		v.Price = st.Price
		v.Action = ActionReviewTrade
	case Finalizing:
		v.Price, v.Quote = st.Price, st.Quote
		v.Action, v.ActionEnabled = ActionPlaceOrder, true
		v.CanModify = true
	case Submitting:
		v.Price, v.Quote = st.Price, st.Quote
		v.Action = ActionConfirming
		v.CanModify = !c.broadcasting
	case Confirming:
		v.Quote, v.TxHash = st.Quote, st.TxHash
		v.Action = ActionConfirming
	case Confirmed:
		v.Quote, v.TxHash = st.Quote, st.TxHash
	}

	switch {
	case v.Quote != nil && v.Quote.BuyAmount != "":
		v.BuyAmount = units.FormatString(v.Quote.BuyAmount, form.BuyToken.Decimals)
	case v.Price != nil && v.Price.BuyAmount != nil:
		v.BuyAmount = units.Format(v.Price.BuyAmount, form.BuyToken.Decimals)
	}
	return v
}

// formActionLocked picks between Approve and Review Trade for the form
func (c *Controller) formActionLocked(form Form) (Action, bool) {
	if c.approving {
		return ActionApproving, false
	}
	amount, err := form.SellAmountUnits()
	if err != nil {
		amount = nil
	}
	if needsApproval(c.acct.allowance, amount) {
		return ActionApprove, amount != nil && amount.Sign() > 0
	}
	if insufficientBalance(c.acct.balance, form.SellAmount, amount) {
		return ActionInsufficientBalance, false
	}
	return ActionReviewTrade, currentPrice(c.state) != nil
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
