package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fakeBackend is an in-memory node holding ERC20 state for a handful of tokens
type fakeBackend struct {
	mu sync.Mutex

	chainID     *big.Int
	native      map[common.Address]*big.Int
	balances    map[common.Address]map[common.Address]*big.Int
	allowances  map[common.Address]map[[2]common.Address]*big.Int
	decimals    map[common.Address]uint8
	nonce       uint64
	gasPrice    *big.Int
	estimate    uint64
	estimateErr error

	sent         []*types.Transaction
	receipts     map[common.Hash]*types.Receipt
	polls        map[common.Hash]int
	pendingPolls int
	revert       bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:    big.NewInt(137),
		native:     map[common.Address]*big.Int{},
		balances:   map[common.Address]map[common.Address]*big.Int{},
		allowances: map[common.Address]map[[2]common.Address]*big.Int{},
		decimals:   map[common.Address]uint8{},
		gasPrice:   big.NewInt(30_000_000_000),
		estimate:   50_000,
		receipts:   map[common.Hash]*types.Receipt{},
		polls:      map[common.Hash]int{},
	}
}

func (f *fakeBackend) setBalance(token, owner common.Address, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[token] == nil {
		f.balances[token] = map[common.Address]*big.Int{}
	}
	f.balances[token][owner] = big.NewInt(amount)
}

func (f *fakeBackend) balanceOf(token, owner common.Address) *big.Int {
	if b, ok := f.balances[token][owner]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (f *fakeBackend) allowanceOf(token, owner, spender common.Address) *big.Int {
	if a, ok := f.allowances[token][[2]common.Address{owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return big.NewInt(0)
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.native[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	method, err := ERC20ABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}

	token := *call.To
	switch method.Name {
	case "balanceOf":
		return method.Outputs.Pack(f.balanceOf(token, args[0].(common.Address)))
	case "allowance":
		return method.Outputs.Pack(f.allowanceOf(token, args[0].(common.Address), args[1].(common.Address)))
	case "decimals":
		return method.Outputs.Pack(f.decimals[token])
	case "symbol":
		return method.Outputs.Pack("TKN")
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	from, err := types.Sender(types.NewEIP155Signer(f.chainID), tx)
	if err != nil {
		return err
	}

	if data := tx.Data(); len(data) >= 4 && !f.revert {
		if method, err := ERC20ABI.MethodById(data[:4]); err == nil {
			args, _ := method.Inputs.Unpack(data[4:])
			token := *tx.To()
			switch method.Name {
			case "approve":
				if f.allowances[token] == nil {
					f.allowances[token] = map[[2]common.Address]*big.Int{}
				}
				f.allowances[token][[2]common.Address{from, args[0].(common.Address)}] = args[1].(*big.Int)
			case "transfer":
				to, amount := args[0].(common.Address), args[1].(*big.Int)
				if f.balances[token] == nil {
					f.balances[token] = map[common.Address]*big.Int{}
				}
				f.balances[token][from] = new(big.Int).Sub(f.balanceOf(token, from), amount)
				f.balances[token][to] = new(big.Int).Add(f.balanceOf(token, to), amount)
			case "claim":
				to := args[0].(common.Address)
				if f.balances[token] == nil {
					f.balances[token] = map[common.Address]*big.Int{}
				}
				f.balances[token][to] = new(big.Int).Add(f.balanceOf(token, to), big.NewInt(100))
			}
		}
	}

	status := types.ReceiptStatusSuccessful
	if f.revert {
		status = types.ReceiptStatusFailed
	}
	f.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(42),
		GasUsed:     tx.Gas(),
	}
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if f.polls[hash] < f.pendingPolls {
		f.polls[hash]++
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *fakeBackend) lastSent() *types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}
