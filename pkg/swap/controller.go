// Package swap drives the price, approval, quote and submission sequence of
// a token swap as an explicit state machine.
package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"devcamp/pkg/chain"
	"devcamp/pkg/client"
	"devcamp/pkg/logger"
	"devcamp/pkg/tokens"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrWalletNotConnected  = errors.New("you must connect your wallet")
	ErrNoPrice             = errors.New("no price available, enter a sell amount first")
	ErrApprovalRequired    = errors.New("allowance does not cover the sell amount, approve first")
	ErrApprovalNotRequired = errors.New("allowance already covers the sell amount")
	ErrApprovalPending     = errors.New("an approval is already pending")
	ErrNothingToApprove    = errors.New("enter a sell amount greater than 0 to approve")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidTransition   = errors.New("action not available in the current stage")
	ErrSubmissionCancelled = errors.New("swap submission cancelled")
	ErrControllerClosed    = errors.New("swap controller closed")
)

// Aggregator fetches indicative prices and firm quotes
type Aggregator interface {
	Price(ctx context.Context, p client.Params) (*client.PriceResponse, error)
	Quote(ctx context.Context, p client.Params) (*client.QuoteResponse, error)
}

// Chain is the wallet surface the flow needs. *chain.Wallet satisfies it.
type Chain interface {
	Address() common.Address
	Connected() bool
	TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
	SignTransaction(ctx context.Context, req chain.TxRequest) (*types.Transaction, error)
	Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Recorder observes flow outcomes, typically for metrics
type Recorder interface {
	PriceSettled(outcome string)
	QuoteSettled(outcome string)
	TxSettled(kind, status string)
}

// Price outcomes passed to Recorder.PriceSettled
const (
	OutcomeApplied    = "applied"
	OutcomeStale      = "stale"
	OutcomeValidation = "validation"
	OutcomeError      = "error"
)

type nopRecorder struct{}

func (nopRecorder) PriceSettled(string)      {}
func (nopRecorder) QuoteSettled(string)      {}
func (nopRecorder) TxSettled(string, string) {}

// Options configures a Controller
type Options struct {
	// Spender is the exchange proxy approvals are granted to
	Spender  common.Address
	Sell     tokens.Token
	Buy      tokens.Token
	Recorder Recorder
}

// account holds live on-chain reads for the current sell token.
// nil values are unknown.
type account struct {
	token     common.Address
	balance   *big.Int
	allowance *big.Int
}

// Controller is the swap flow state machine. All methods are safe for
// concurrent use; form events return immediately and settle in the background.
type Controller struct {
	agg      Aggregator
	chain    Chain
	spender  common.Address
	recorder Recorder
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	closed      bool
	priceSeq    uint64
	cancelPrice context.CancelFunc
	validation  []client.ValidationError
	lastErr     error

	accountSeq uint64
	acct       account

	approving  bool
	approvalTx common.Hash

	submitSeq    uint64
	cancelSubmit context.CancelFunc
	broadcasting bool

	changes chan struct{}
}

// New creates a controller in the Editing stage with an empty sell amount
func New(agg Aggregator, ch Chain, opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Controller{
		agg:      agg,
		chain:    ch,
		spender:  opts.Spender,
		recorder: recorder,
		log:      logger.For(logger.CategorySwap),
		ctx:      ctx,
		cancel:   cancel,
		state:    Editing{Form: Form{SellToken: opts.Sell, BuyToken: opts.Buy}},
		acct:     account{token: opts.Sell.Address},
		changes:  make(chan struct{}, 1),
	}
}

// Changes signals after every state change. Signals coalesce, so readers
// should call View rather than count them.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

// State returns the current stage variant
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until background price fetches and account reads settle
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels all background work and waits for it to exit
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}

// SetSellToken selects the token to sell, re-reading its balance and allowance
func (c *Controller) SetSellToken(token tokens.Token) error {
	return c.editForm(func(f *Form) { f.SellToken = token }, true)
}

// SetBuyToken selects the token to buy
func (c *Controller) SetBuyToken(token tokens.Token) error {
	return c.editForm(func(f *Form) { f.BuyToken = token }, false)
}

// SetSellAmount sets the human-readable sell amount, e.g. "10"
func (c *Controller) SetSellAmount(amount string) error {
	return c.editForm(func(f *Form) { f.SellAmount = amount }, false)
}

func (c *Controller) editForm(edit func(*Form), sellTokenChanged bool) error {
	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()

	if c.closed {
		return ErrControllerClosed
	}
	if !editable(c.state) {
		return fmt.Errorf("%w: cannot edit the form while %s", ErrInvalidTransition, c.state.Stage())
	}

	form := c.state.form()
	edit(&form)

	if sellTokenChanged {
		c.acct = account{token: form.SellToken.Address}
		c.startAccountRefreshLocked()
	}
	c.startPriceLocked(form)
	return nil
}

// startPriceLocked supersedes any in-flight price request and issues a new one
// for form. Any price held for the old form is discarded.
func (c *Controller) startPriceLocked(form Form) {
	if c.cancelPrice != nil {
		c.cancelPrice()
		c.cancelPrice = nil
	}
	c.priceSeq++
	c.validation = nil
	c.lastErr = nil

	amount, err := form.SellAmountUnits()
	if err != nil || amount.Sign() == 0 {
		c.state = Editing{Form: form}
		if err != nil && form.SellAmount != "" {
			c.lastErr = err
		}
		return
	}

	params := client.Params{
		SellToken:  form.SellToken.Address,
		BuyToken:   form.BuyToken.Address,
		SellAmount: amount,
	}
	if c.chain != nil && c.chain.Connected() {
		params.Taker = c.chain.Address()
	}

	seq := c.priceSeq
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelPrice = cancel
	c.state = PriceLoading{Form: form, Seq: seq}

	c.wg.Add(1)
	go c.fetchPrice(ctx, seq, form, params)
}

func (c *Controller) fetchPrice(ctx context.Context, seq uint64, form Form, params client.Params) {
	defer c.wg.Done()

	resp, err := c.agg.Price(ctx, params)

	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()

	if seq != c.priceSeq || c.closed {
		c.log.Debug().Uint64("seq", seq).Uint64("latest", c.priceSeq).Msg("discarding superseded price response")
		c.recorder.PriceSettled(OutcomeStale)
		return
	}
	c.cancelPrice = nil

	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr) && len(apiErr.ValidationErrors) > 0:
		c.validation = apiErr.ValidationErrors
		c.state = Editing{Form: form}
		c.recorder.PriceSettled(OutcomeValidation)
		return
	case err != nil:
		c.log.Warn().Err(err).Str("sell", form.SellToken.Symbol).Str("buy", form.BuyToken.Symbol).Msg("price request failed")
		c.lastErr = fmt.Errorf("failed to fetch price: %w", err)
		c.state = Editing{Form: form}
		c.recorder.PriceSettled(OutcomeError)
		return
	case len(resp.ValidationErrors) > 0:
		c.validation = resp.ValidationErrors
		c.state = Editing{Form: form}
		c.recorder.PriceSettled(OutcomeValidation)
		return
	}

	price := &Price{Params: params, Response: resp}
	if resp.BuyAmount != "" {
		buy, ok := new(big.Int).SetString(resp.BuyAmount, 10)
		if !ok {
			c.lastErr = fmt.Errorf("invalid buy amount %q in price response", resp.BuyAmount)
			c.state = Editing{Form: form}
			c.recorder.PriceSettled(OutcomeError)
			return
		}
		price.BuyAmount = buy
	}

	c.state = PriceReady{Form: form, Price: price}
	c.recorder.PriceSettled(OutcomeApplied)
	c.log.Debug().Uint64("seq", seq).Str("buy_amount", resp.BuyAmount).Msg("price applied")
}

// RefreshAccount re-reads the balance and allowance of the current sell token
func (c *Controller) RefreshAccount(ctx context.Context) error {
	c.mu.Lock()
	if c.chain == nil || !c.chain.Connected() {
		c.mu.Unlock()
		return ErrWalletNotConnected
	}
	c.accountSeq++
	seq, token := c.accountSeq, c.state.form().SellToken.Address
	c.mu.Unlock()

	return c.refreshAccount(ctx, seq, token)
}

func (c *Controller) startAccountRefreshLocked() {
	if c.chain == nil || !c.chain.Connected() {
		return
	}
	c.accountSeq++
	seq, token := c.accountSeq, c.acct.token

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.refreshAccount(c.ctx, seq, token); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn().Err(err).Str("token", token.Hex()).Msg("account refresh failed")
		}
	}()
}

func (c *Controller) refreshAccount(ctx context.Context, seq uint64, token common.Address) error {
	owner := c.chain.Address()

	var balance, allowance *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balance, err = c.chain.TokenBalance(gctx, token, owner)
		return err
	})
	g.Go(func() error {
		var err error
		allowance, err = c.chain.Allowance(gctx, token, owner, c.spender)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to read account: %w", err)
	}

	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()

	if seq != c.accountSeq || token != c.acct.token {
		return nil
	}
	c.acct.balance = balance
	c.acct.allowance = allowance
	return nil
}

// Approve grants the exchange proxy exactly the sell amount, waits for the
// approval to confirm, then re-reads the allowance.
func (c *Controller) Approve(ctx context.Context) (common.Hash, error) {
	c.mu.Lock()
	if err := c.requireWalletLocked(); err != nil {
		c.mu.Unlock()
		return common.Hash{}, err
	}
	if !editable(c.state) {
		c.mu.Unlock()
		return common.Hash{}, fmt.Errorf("%w: cannot approve while %s", ErrInvalidTransition, c.state.Stage())
	}
	if c.approving {
		c.mu.Unlock()
		return common.Hash{}, ErrApprovalPending
	}
	form := c.state.form()
	amount, err := form.SellAmountUnits()
	if err != nil {
		c.mu.Unlock()
		return common.Hash{}, err
	}
	if !needsApproval(c.acct.allowance, amount) {
		c.mu.Unlock()
		return common.Hash{}, ErrApprovalNotRequired
	}
	if amount.Sign() == 0 {
		c.mu.Unlock()
		return common.Hash{}, ErrNothingToApprove
	}
	token := form.SellToken.Address
	c.approving = true
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()

	hash, err := c.chain.Approve(ctx, token, c.spender, amount)
	if err != nil {
		c.finishApproval(err)
		c.recorder.TxSettled("approve", "error")
		return common.Hash{}, err
	}

	c.mu.Lock()
	c.approvalTx = hash
	c.mu.Unlock()
	c.notify()

	c.log.Info().Str("hash", hash.Hex()).Str("token", form.SellToken.Symbol).Str("amount", amount.String()).Msg("approval submitted")

	if _, err := c.chain.WaitReceipt(ctx, hash); err != nil {
		if unsettled(err) {
			err = fmt.Errorf("approval %s still pending: %w", hash.Hex(), err)
			c.finishApproval(err)
			c.recorder.TxSettled("approve", "pending")
			return hash, err
		}
		err = fmt.Errorf("approval %s failed: %w", hash.Hex(), err)
		c.finishApproval(err)
		c.recorder.TxSettled("approve", "failed")
		return hash, err
	}
	c.finishApproval(nil)
	c.recorder.TxSettled("approve", "confirmed")

	if err := c.RefreshAccount(ctx); err != nil {
		return hash, err
	}
	return hash, nil
}

func (c *Controller) finishApproval(err error) {
	c.mu.Lock()
	c.approving = false
	c.approvalTx = common.Hash{}
	if err != nil {
		c.lastErr = err
	}
	c.mu.Unlock()
	c.notify()
}

// Review requests a firm quote for the current price and moves to Finalizing
func (c *Controller) Review(ctx context.Context) error {
	c.mu.Lock()
	if err := c.requireWalletLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	price := currentPrice(c.state)
	if price == nil {
		c.mu.Unlock()
		return ErrNoPrice
	}
	form := c.state.form()
	if err := c.checkTradableLocked(form); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = QuoteLoading{Form: form, Price: price}
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()

	// the price record fixes the quoted tuple
	params := client.Params{
		SellToken:  price.SellTokenAddress(),
		BuyToken:   price.BuyTokenAddress(),
		SellAmount: price.SellAmount(),
		Taker:      c.chain.Address(),
	}
	quote, err := c.agg.Quote(ctx, params)

	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()

	if c.closed {
		return ErrControllerClosed
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("quote request failed")
		c.lastErr = fmt.Errorf("failed to fetch quote: %w", err)
		c.state = PriceReady{Form: form, Price: price}
		c.recorder.QuoteSettled(OutcomeError)
		return c.lastErr
	}
	c.state = Finalizing{Form: form, Price: price, Quote: quote}
	c.recorder.QuoteSettled(OutcomeApplied)
	return nil
}

// ModifySwap discards the firm quote and returns to Editing. It is allowed
// until the swap transaction has been handed to the node.
func (c *Controller) ModifySwap() error {
	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()

	switch st := c.state.(type) {
	case Finalizing:
		c.state = Editing{Form: st.Form, Price: st.Price}
	case Submitting:
		if c.broadcasting {
			return fmt.Errorf("%w: transaction already broadcast", ErrInvalidTransition)
		}
		if c.cancelSubmit != nil {
			c.cancelSubmit()
			c.cancelSubmit = nil
		}
		c.state = Editing{Form: st.Form, Price: st.Price}
	default:
		return fmt.Errorf("%w: cannot modify swap while %s", ErrInvalidTransition, c.state.Stage())
	}
	c.lastErr = nil
	return nil
}

// PlaceOrder submits the firm quote's transaction and waits for it to confirm
func (c *Controller) PlaceOrder(ctx context.Context) (common.Hash, error) {
	c.mu.Lock()
	fin, ok := c.state.(Finalizing)
	if !ok {
		stage := c.state.Stage()
		c.mu.Unlock()
		return common.Hash{}, fmt.Errorf("%w: cannot place order while %s", ErrInvalidTransition, stage)
	}
	if err := c.requireWalletLocked(); err != nil {
		c.mu.Unlock()
		return common.Hash{}, err
	}
	submitting := Submitting{Form: fin.Form, Price: fin.Price, Quote: fin.Quote}
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.submitSeq++
	seq := c.submitSeq
	c.cancelSubmit = cancel
	c.broadcasting = false
	c.lastErr = nil
	c.state = submitting
	c.mu.Unlock()
	c.notify()

	tx, err := c.prepareSwap(subCtx, fin)
	if err != nil {
		return common.Hash{}, c.abortSubmit(seq, err)
	}

	c.mu.Lock()
	if _, still := c.state.(Submitting); !still || seq != c.submitSeq || subCtx.Err() != nil || c.closed {
		c.mu.Unlock()
		return common.Hash{}, ErrSubmissionCancelled
	}
	c.broadcasting = true
	c.cancelSubmit = nil
	c.mu.Unlock()
	c.notify()

	hash, err := c.chain.Broadcast(ctx, tx)
	if err != nil {
		c.recorder.TxSettled("swap", "error")
		return common.Hash{}, c.abortSubmit(seq, err)
	}

	c.mu.Lock()
	c.broadcasting = false
	c.state = Confirming{Form: fin.Form, Quote: fin.Quote, TxHash: hash}
	c.mu.Unlock()
	c.notify()

	c.log.Info().Str("hash", hash.Hex()).Str("sell", fin.Form.SellToken.Symbol).Str("buy", fin.Form.BuyToken.Symbol).Msg("swap submitted")

	receipt, err := c.chain.WaitReceipt(ctx, hash)

	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()

	if err != nil && unsettled(err) {
		// the swap may still mine, so no new price is offered for it
		c.recorder.TxSettled("swap", "pending")
		err = fmt.Errorf("swap %s still pending: %w", hash.Hex(), err)
		c.lastErr = err
		return hash, err
	}
	if err != nil {
		c.recorder.TxSettled("swap", "failed")
		err = fmt.Errorf("swap %s failed: %w", hash.Hex(), err)
		if !c.closed {
			// balances moved or the quote expired, start over from the form
			c.startPriceLocked(fin.Form)
			c.startAccountRefreshLocked()
		}
		c.lastErr = err
		return hash, err
	}

	c.recorder.TxSettled("swap", "confirmed")
	c.state = Confirmed{Form: fin.Form, Quote: fin.Quote, TxHash: hash, Receipt: receipt}
	return hash, nil
}

// prepareSwap re-checks the live allowance and signs the quote's transaction
func (c *Controller) prepareSwap(ctx context.Context, fin Finalizing) (*types.Transaction, error) {
	amount, err := fin.Form.SellAmountUnits()
	if err != nil {
		return nil, err
	}
	allowance, err := c.chain.Allowance(ctx, fin.Form.SellToken.Address, c.chain.Address(), c.spender)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowance: %w", err)
	}

	c.mu.Lock()
	if c.acct.token == fin.Form.SellToken.Address {
		c.acct.allowance = allowance
	}
	c.mu.Unlock()

	if allowance.Cmp(amount) < 0 {
		return nil, ErrApprovalRequired
	}

	req, err := txRequest(fin.Quote)
	if err != nil {
		return nil, err
	}
	return c.chain.SignTransaction(ctx, req)
}

// abortSubmit returns a failed submission to Finalizing so the user can retry
// or modify. Submissions superseded by ModifySwap or a newer PlaceOrder leave
// the state alone.
func (c *Controller) abortSubmit(seq uint64, err error) error {
	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()

	if seq != c.submitSeq {
		return ErrSubmissionCancelled
	}
	c.broadcasting = false
	c.cancelSubmit = nil

	st, ok := c.state.(Submitting)
	if !ok {
		return ErrSubmissionCancelled
	}
	if errors.Is(err, ErrApprovalRequired) {
		c.state = Editing{Form: st.Form, Price: st.Price}
	} else {
		c.state = Finalizing{Form: st.Form, Price: st.Price, Quote: st.Quote}
	}
	c.lastErr = err
	c.log.Warn().Err(err).Msg("swap submission failed")
	return err
}

func (c *Controller) requireWalletLocked() error {
	if c.closed {
		return ErrControllerClosed
	}
	if c.chain == nil || !c.chain.Connected() {
		return ErrWalletNotConnected
	}
	return nil
}

// checkTradableLocked enforces the allowance invariant and the balance check
func (c *Controller) checkTradableLocked(form Form) error {
	amount, err := form.SellAmountUnits()
	if err != nil {
		return err
	}
	if needsApproval(c.acct.allowance, amount) {
		return ErrApprovalRequired
	}
	if insufficientBalance(c.acct.balance, form.SellAmount, amount) {
		return ErrInsufficientBalance
	}
	return nil
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// needsApproval is true when the allowance is known and either zero or short
// of amount. A zero allowance asks for approval even before an amount is set.
func needsApproval(allowance, amount *big.Int) bool {
	if allowance == nil {
		return false
	}
	if allowance.Sign() == 0 {
		return true
	}
	return amount != nil && allowance.Cmp(amount) < 0
}

// unsettled reports a receipt wait that ended without an outcome
func unsettled(err error) bool {
	return errors.Is(err, chain.ErrConfirmTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// insufficientBalance treats an unknown balance or empty amount as insufficient
func insufficientBalance(balance *big.Int, raw string, amount *big.Int) bool {
	if balance == nil || raw == "" || amount == nil {
		return true
	}
	return amount.Cmp(balance) > 0
}
