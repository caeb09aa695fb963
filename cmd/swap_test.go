package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"devcamp/pkg/chain"
	"devcamp/pkg/history"
)

func TestTxOutcome(t *testing.T) {
	timeout := fmt.Errorf("swap 0xabc still pending: %w", fmt.Errorf("%w after 10m0s", chain.ErrConfirmTimeout))

	cases := []struct {
		name    string
		err     error
		status  history.Status
		message string
	}{
		{"confirmed", nil, history.StatusConfirmed, ""},
		{"confirm timeout", timeout, history.StatusPending, ""},
		{"interrupted", context.Canceled, history.StatusPending, ""},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), history.StatusPending, ""},
		{"reverted", fmt.Errorf("swap 0xabc failed: %w", chain.ErrReverted), history.StatusFailed, "swap 0xabc failed: transaction reverted"},
		{"other", errors.New("nonce too low"), history.StatusFailed, "nonce too low"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, message := txOutcome(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.message, message)
		})
	}
}
