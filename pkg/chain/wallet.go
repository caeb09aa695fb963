package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"devcamp/pkg/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

var (
	ErrNoSigner            = errors.New("wallet not connected")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

const (
	nativeTransferGas = uint64(21000)
	contractCallGas   = uint64(100000)
)

// Backend is the slice of the JSON-RPC client the wallet needs.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Options tunes receipt polling
type Options struct {
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

// Wallet signs and submits transactions for one account on one chain.
// A wallet without a key can still read balances and receipts.
type Wallet struct {
	backend    Backend
	closer     func()
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int

	pollInterval   time.Duration
	confirmTimeout time.Duration

	log zerolog.Logger
}

// Dial connects to rpcURL and loads the optional hex private key
func Dial(ctx context.Context, rpcURL, privateKeyHex string, opts Options) (*Wallet, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	var key *ecdsa.PrivateKey
	if privateKeyHex != "" {
		key, err = ParsePrivateKey(privateKeyHex)
		if err != nil {
			client.Close()
			return nil, err
		}
	}

	w, err := NewWallet(ctx, client, key, opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	w.closer = client.Close
	return w, nil
}

// NewWallet wraps an existing backend. The chain id is read once up front.
func NewWallet(ctx context.Context, backend Backend, key *ecdsa.PrivateKey, opts Options) (*Wallet, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 10 * time.Minute
	}

	w := &Wallet{
		backend:        backend,
		privateKey:     key,
		chainID:        chainID,
		pollInterval:   opts.PollInterval,
		confirmTimeout: opts.ConfirmTimeout,
		log:            logger.For(logger.CategoryTx),
	}
	if key != nil {
		w.address = crypto.PubkeyToAddress(key.PublicKey)
		w.log = w.log.With().Str("account", w.address.Hex()).Logger()
	}
	return w, nil
}

// ParsePrivateKey accepts a hex key with or without the 0x prefix
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// Address returns the connected account, or the zero address without a key
func (w *Wallet) Address() common.Address {
	return w.address
}

// Connected reports whether the wallet can sign
func (w *Wallet) Connected() bool {
	return w.privateKey != nil
}

// ChainID returns the chain the backend reported at construction
func (w *Wallet) ChainID() *big.Int {
	return new(big.Int).Set(w.chainID)
}

// NativeBalance returns the account's balance in wei
func (w *Wallet) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := w.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// SendNative transfers wei to a recipient after checking the balance
func (w *Wallet) SendNative(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	if err := w.requireSigner(); err != nil {
		return common.Hash{}, err
	}

	balance, err := w.NativeBalance(ctx, w.address)
	if err != nil {
		return common.Hash{}, err
	}
	if balance.Cmp(amount) < 0 {
		return common.Hash{}, fmt.Errorf("%w: have %s wei, need %s wei", ErrInsufficientBalance, balance, amount)
	}

	return w.SendTransaction(ctx, TxRequest{To: to, Value: amount, Gas: nativeTransferGas})
}

// TxRequest describes a transaction to sign. Zero Gas and nil GasPrice
// are filled from the node.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

// SendTransaction signs a legacy transaction from the connected account and broadcasts it
func (w *Wallet) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	tx, err := w.SignTransaction(ctx, req)
	if err != nil {
		return common.Hash{}, err
	}
	return w.Broadcast(ctx, tx)
}

// SignTransaction builds and signs req without sending it
func (w *Wallet) SignTransaction(ctx context.Context, req TxRequest) (*types.Transaction, error) {
	if err := w.requireSigner(); err != nil {
		return nil, err
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil || gasPrice.Sign() == 0 {
		gasPrice, err = w.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
	}

	gasLimit := req.Gas
	if gasLimit == 0 {
		gasLimit = w.estimateGas(ctx, req.To, value, req.Data)
	}

	tx := types.NewTransaction(nonce, req.To, value, gasLimit, gasPrice, req.Data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(w.chainID), w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// Broadcast sends a signed transaction
func (w *Wallet) Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	if err := w.backend.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	w.log.Info().
		Str("hash", tx.Hash().Hex()).
		Uint64("nonce", tx.Nonce()).
		Uint64("gas", tx.Gas()).
		Msg("transaction sent")
	return tx.Hash(), nil
}

func (w *Wallet) estimateGas(ctx context.Context, to common.Address, value *big.Int, data []byte) uint64 {
	if len(data) == 0 {
		return nativeTransferGas
	}

	estimated, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		w.log.Debug().Err(err).Msg("gas estimation failed, using default limit")
		return contractCallGas
	}
	// 20% headroom
	return estimated * 120 / 100
}

func (w *Wallet) requireSigner() error {
	if w.privateKey == nil {
		return ErrNoSigner
	}
	return nil
}

// Close releases the RPC connection when the wallet owns it
func (w *Wallet) Close() {
	if w.closer != nil {
		w.closer()
	}
}
