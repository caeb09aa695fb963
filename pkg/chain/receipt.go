package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrReverted       = errors.New("transaction reverted")
	ErrConfirmTimeout = errors.New("timed out waiting for confirmation")

	errNotMined = errors.New("transaction not mined yet")
)

// TxStatus is the lifecycle state of a submitted transaction
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// Status looks up a transaction once without waiting
func (w *Wallet) Status(ctx context.Context, hash common.Hash) (TxStatus, *types.Receipt, error) {
	receipt, err := w.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return TxPending, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return TxFailed, receipt, nil
	}
	return TxConfirmed, receipt, nil
}

// WaitReceipt polls until the transaction is mined. A mined but reverted
// transaction returns its receipt together with ErrReverted.
func (w *Wallet) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	log := w.log.With().Str("hash", hash.Hex()).Logger()

	operation := func() (*types.Receipt, error) {
		receipt, err := w.backend.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, errNotMined
		}
		if err != nil {
			// transient RPC failures keep polling
			return nil, err
		}
		return receipt, nil
	}

	notify := func(err error, next time.Duration) {
		if !errors.Is(err, errNotMined) {
			log.Warn().Err(err).Dur("retry_in", next).Msg("receipt lookup failed")
		}
	}

	receipt, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(w.pollInterval)),
		backoff.WithMaxElapsedTime(w.confirmTimeout),
		backoff.WithNotify(notify),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, errNotMined) {
			return nil, fmt.Errorf("%w after %s", ErrConfirmTimeout, w.confirmTimeout)
		}
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}

	if receipt.Status == types.ReceiptStatusFailed {
		log.Warn().Uint64("block", receipt.BlockNumber.Uint64()).Msg("transaction reverted")
		return receipt, ErrReverted
	}

	log.Info().
		Uint64("block", receipt.BlockNumber.Uint64()).
		Uint64("gas_used", receipt.GasUsed).
		Msg("transaction confirmed")
	return receipt, nil
}
