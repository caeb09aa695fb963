package swap

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"devcamp/pkg/chain"
	"devcamp/pkg/client"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// pendingPrice is a price request held until the test releases it
type pendingPrice struct {
	ctx     context.Context
	params  client.Params
	release chan priceResult
}

type priceResult struct {
	resp *client.PriceResponse
	err  error
}

type fakeAggregator struct {
	mu sync.Mutex

	// priceFn answers immediately when set, otherwise requests are gated
	priceFn func(client.Params) (*client.PriceResponse, error)
	pending chan *pendingPrice

	quoteFn    func(client.Params) (*client.QuoteResponse, error)
	quoteCalls []client.Params
	priceCalls int
}

func newFakeAggregator() *fakeAggregator {
	return &fakeAggregator{pending: make(chan *pendingPrice, 16)}
}

func (f *fakeAggregator) Price(ctx context.Context, p client.Params) (*client.PriceResponse, error) {
	f.mu.Lock()
	f.priceCalls++
	fn := f.priceFn
	f.mu.Unlock()

	if fn != nil {
		return fn(p)
	}

	req := &pendingPrice{ctx: ctx, params: p, release: make(chan priceResult, 1)}
	f.pending <- req
	// gated requests ignore cancellation so stale answers really arrive
	res := <-req.release
	return res.resp, res.err
}

func (f *fakeAggregator) Quote(_ context.Context, p client.Params) (*client.QuoteResponse, error) {
	f.mu.Lock()
	f.quoteCalls = append(f.quoteCalls, p)
	fn := f.quoteFn
	f.mu.Unlock()
	return fn(p)
}

func (f *fakeAggregator) quotes() []client.Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.Params(nil), f.quoteCalls...)
}

type approval struct {
	token, spender common.Address
	amount         *big.Int
}

type fakeChain struct {
	mu sync.Mutex

	address    common.Address
	connected  bool
	balances   map[common.Address]*big.Int
	allowances map[common.Address]*big.Int

	approvals []approval
	// confirming an approval hash credits the allowance
	approvalHashes map[common.Hash]approval
	approveCalls   int
	approveErr     error
	approveRevert  bool

	allowanceGate chan struct{}
	// allowanceStall holds the next allowance read, ignoring cancellation,
	// until the test sends the error it should return
	allowanceStall chan error
	broadcast     []*types.Transaction
	broadcastErr  error
	revert        bool
	// waitErr is returned for every receipt wait when set
	waitErr error
	nextHash      byte
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		address:        common.HexToAddress("0x00000000000000000000000000000000000A11CE"),
		connected:      true,
		balances:       map[common.Address]*big.Int{},
		allowances:     map[common.Address]*big.Int{},
		approvalHashes: map[common.Hash]approval{},
	}
}

func (f *fakeChain) Address() common.Address { return f.address }
func (f *fakeChain) Connected() bool         { return f.connected }

func (f *fakeChain) setBalance(token common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[token] = v
}

func (f *fakeChain) setAllowance(token common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[token] = v
}

func (f *fakeChain) TokenBalance(_ context.Context, token, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[token]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) Allowance(ctx context.Context, token, _, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	gate := f.allowanceGate
	stall := f.allowanceStall
	f.allowanceStall = nil
	f.mu.Unlock()
	if stall != nil {
		if err := <-stall; err != nil {
			return nil, err
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.allowances[token]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) hash() common.Hash {
	f.nextHash++
	return common.BytesToHash([]byte{0xab, f.nextHash})
}

func (f *fakeChain) Approve(_ context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approveCalls++
	if f.approveErr != nil {
		return common.Hash{}, f.approveErr
	}
	a := approval{token: token, spender: spender, amount: new(big.Int).Set(amount)}
	f.approvals = append(f.approvals, a)
	h := f.hash()
	f.approvalHashes[h] = a
	return h, nil
}

func (f *fakeChain) SignTransaction(_ context.Context, req chain.TxRequest) (*types.Transaction, error) {
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	return types.NewTransaction(0, req.To, value, req.Gas, req.GasPrice, req.Data), nil
}

func (f *fakeChain) Broadcast(_ context.Context, tx *types.Transaction) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broadcastErr != nil {
		return common.Hash{}, f.broadcastErr
	}
	f.broadcast = append(f.broadcast, tx)
	return tx.Hash(), nil
}

func (f *fakeChain) WaitReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	if a, ok := f.approvalHashes[hash]; ok {
		if f.approveRevert {
			return &types.Receipt{Status: types.ReceiptStatusFailed, TxHash: hash}, chain.ErrReverted
		}
		f.allowances[a.token] = a.amount
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}, nil
	}
	if f.revert {
		return &types.Receipt{Status: types.ReceiptStatusFailed, TxHash: hash}, chain.ErrReverted
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash, BlockNumber: big.NewInt(1)}, nil
}

func (f *fakeChain) broadcasts() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.broadcast...)
}

type countingRecorder struct {
	mu     sync.Mutex
	prices map[string]int
	quotes map[string]int
	txs    map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{prices: map[string]int{}, quotes: map[string]int{}, txs: map[string]int{}}
}

func (r *countingRecorder) PriceSettled(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[outcome]++
}

func (r *countingRecorder) QuoteSettled(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes[outcome]++
}

func (r *countingRecorder) TxSettled(kind, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[kind+"/"+status]++
}

func (r *countingRecorder) tx(kind, status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txs[kind+"/"+status]
}

func (r *countingRecorder) price(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prices[outcome]
}

var (
	errNetwork  = errors.New("connection refused")
	errRejected = errors.New("user rejected transaction")
)
