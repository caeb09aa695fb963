package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"devcamp/config"
	"devcamp/pkg/chain"
	"devcamp/pkg/history"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the status of a transaction",
	Long: `Check whether a submitted transaction is pending, confirmed or failed.
If the transaction is in the local history its record is updated.

Examples:
  devcamp status 0x1234...abcd
  devcamp status 0x1234...abcd --watch
  devcamp status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Wait until the transaction is mined")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 0, "Polling interval in seconds (defaults to poll_interval)")
}

func runStatus(cmd *cobra.Command, args []string) {
	if !strings.HasPrefix(args[0], "0x") || len(args[0]) != 66 {
		printError(fmt.Errorf("invalid transaction hash '%s'", args[0]))
		os.Exit(1)
	}
	hash := common.HexToHash(args[0])
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg := loadConfig(cmd)
	if watchInterval > 0 {
		cfg.PollInterval = time.Duration(watchInterval) * time.Second
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wallet := openWallet(ctx, cfg, false)
	defer wallet.Close()
	store := openHistory(cfg)

	if watchStatus {
		watchTxStatus(ctx, cfg, wallet, store, hash, jsonOutput)
	} else {
		checkTxStatus(ctx, cfg, wallet, store, hash, jsonOutput)
	}
}

func checkTxStatus(ctx context.Context, cfg *config.Config, wallet *chain.Wallet, store *history.Store, hash common.Hash, jsonOutput bool) {
	s := newSpinner("Checking transaction status...", jsonOutput)
	status, receipt, err := wallet.Status(ctx, hash)
	s.Stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}
	syncHistory(store, hash, status)
	showStatus(cfg, store, hash, status, receipt, jsonOutput)
}

func watchTxStatus(ctx context.Context, cfg *config.Config, wallet *chain.Wallet, store *history.Store, hash common.Hash, jsonOutput bool) {
	if !jsonOutput {
		fmt.Printf("\nWatching transaction %s\n", color.CyanString(hash.Hex()))
		fmt.Printf("Checking every %s for up to %s. Press Ctrl+C to stop.\n", cfg.PollInterval, cfg.ConfirmTimeout)
	}

	receipt, err := wallet.WaitReceipt(ctx, hash)
	switch {
	case err == nil:
		syncHistory(store, hash, chain.TxConfirmed)
		showStatus(cfg, store, hash, chain.TxConfirmed, receipt, jsonOutput)
	case errors.Is(err, chain.ErrReverted):
		syncHistory(store, hash, chain.TxFailed)
		showStatus(cfg, store, hash, chain.TxFailed, receipt, jsonOutput)
		os.Exit(1)
	default:
		showStatus(cfg, store, hash, chain.TxPending, nil, jsonOutput)
		printError(err)
		os.Exit(1)
	}
}

// syncHistory copies a final on-chain status into the ledger, if recorded
func syncHistory(store *history.Store, hash common.Hash, status chain.TxStatus) {
	var final history.Status
	var errMsg string
	switch status {
	case chain.TxConfirmed:
		final = history.StatusConfirmed
	case chain.TxFailed:
		final, errMsg = history.StatusFailed, chain.ErrReverted.Error()
	default:
		return
	}
	if rec, err := store.Get(hash.Hex()); err == nil && rec.Status != final {
		_ = store.UpdateStatus(hash.Hex(), final, errMsg)
	}
}

func showStatus(cfg *config.Config, store *history.Store, hash common.Hash, status chain.TxStatus, receipt *types.Receipt, jsonOutput bool) {
	rec, _ := store.Get(hash.Hex())

	if jsonOutput {
		out := map[string]interface{}{
			"tx_hash": hash.Hex(),
			"status":  status,
		}
		if receipt != nil {
			out["block_number"] = receipt.BlockNumber.Uint64()
			out["gas_used"] = receipt.GasUsed
		}
		if rec != nil {
			out["record"] = rec
		}
		printJSON(out)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                     TRANSACTION STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Transaction:     %s\n", color.CyanString(hash.Hex()))
	fmt.Printf("  Status:          %s\n", getColoredStatus(string(status)))
	if receipt != nil {
		fmt.Printf("  Block:           %d\n", receipt.BlockNumber.Uint64())
		fmt.Printf("  Gas Used:        %d\n", receipt.GasUsed)
	}
	if rec != nil {
		fmt.Printf("  Action:          %s\n", rec.Kind)
		if rec.Summary != "" {
			fmt.Printf("  Summary:         %s\n", rec.Summary)
		}
		fmt.Printf("  Submitted:       %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("  Explorer:        %s\n", color.HiBlackString(explorerLink(cfg, hash)))

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}
