package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// erc20ABIJSON is the standard token surface plus the bootcamp token's claim(address)
const erc20ABIJSON = `[
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
{"constant":false,"inputs":[{"name":"_to","type":"address"}],"name":"claim","outputs":[],"type":"function"}
]`

// ERC20ABI is the parsed token interface
var ERC20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
	}
	return parsed
}

// TokenBalance returns balanceOf(account) for token
func (w *Wallet) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	out, err := w.call(ctx, token, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Allowance returns how much spender may move on behalf of owner
func (w *Wallet) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := w.call(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Decimals reads the token's decimal precision
func (w *Wallet) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := w.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

// Symbol reads the token's ticker
func (w *Wallet) Symbol(ctx context.Context, token common.Address) (string, error) {
	out, err := w.call(ctx, token, "symbol")
	if err != nil {
		return "", err
	}
	return out[0].(string), nil
}

// Approve authorizes spender to move exactly amount of token
func (w *Wallet) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve data: %w", err)
	}
	return w.SendTransaction(ctx, TxRequest{To: token, Data: data})
}

// Transfer sends amount of token to recipient, checking the balance first
func (w *Wallet) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	if err := w.requireSigner(); err != nil {
		return common.Hash{}, err
	}
	balance, err := w.TokenBalance(ctx, token, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get token balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return common.Hash{}, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance, amount)
	}

	data, err := ERC20ABI.Pack("transfer", to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack transfer data: %w", err)
	}
	return w.SendTransaction(ctx, TxRequest{To: token, Data: data})
}

// Claim calls the bootcamp token faucet for the connected account
func (w *Wallet) Claim(ctx context.Context, token common.Address) (common.Hash, error) {
	if err := w.requireSigner(); err != nil {
		return common.Hash{}, err
	}
	data, err := ERC20ABI.Pack("claim", w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack claim data: %w", err)
	}
	return w.SendTransaction(ctx, TxRequest{To: token, Data: data})
}

func (w *Wallet) call(ctx context.Context, token common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := ERC20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s data: %w", method, err)
	}

	result, err := w.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	out, err := ERC20ABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	return out, nil
}
