package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"devcamp/config"
	"devcamp/pkg/chain"
	"devcamp/pkg/history"
	"devcamp/pkg/logger"
	"devcamp/pkg/tokens"
)

// loadConfig loads configuration and installs the logger, exiting on failure
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger.Setup(cfg.LogLevel, verbose)
	return cfg
}

// openWallet dials the RPC endpoint. withKey demands a signing key.
func openWallet(ctx context.Context, cfg *config.Config, withKey bool) *chain.Wallet {
	if withKey {
		if err := cfg.RequireWallet(); err != nil {
			printError(err)
			os.Exit(1)
		}
	}
	wallet, err := chain.Dial(ctx, cfg.RPCURL, cfg.PrivateKey, chain.Options{
		PollInterval:   cfg.PollInterval,
		ConfirmTimeout: cfg.ConfirmTimeout,
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if wallet.ChainID().Int64() != cfg.ChainID {
		color.Yellow("Warning: RPC endpoint is on %s but chain_id is %d\n",
			tokens.ChainName(wallet.ChainID().Int64()), cfg.ChainID)
	}
	return wallet
}

func openHistory(cfg *config.Config) *history.Store {
	store, err := history.NewStore(cfg.HistoryFile)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return store
}

func newSpinner(suffix string, quiet bool) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	if !quiet {
		s.Start()
	}
	return s
}

func confirmPrompt(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", question)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func readLine(prompt string) string {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print(prompt)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func printJSON(v interface{}) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address '%s'", raw)
	}
	return common.HexToAddress(raw), nil
}

// erc20Address is the configured bootcamp token, or override when set
func erc20Address(cfg *config.Config, override string) (common.Address, error) {
	if override != "" {
		return parseAddress(override)
	}
	return parseAddress(cfg.ERC20ContractAddress)
}

// recordTx stores a pending record, logging instead of failing the command
func recordTx(store *history.Store, rec *history.Record) {
	if err := store.Add(rec); err != nil {
		color.Yellow("Warning: failed to record transaction: %v\n", err)
	}
}

// settleTx waits for hash and writes its final status to the ledger
func settleTx(ctx context.Context, wallet *chain.Wallet, store *history.Store, cfg *config.Config, hash common.Hash, quiet bool) error {
	s := newSpinner("Waiting for confirmation...", quiet)
	receipt, err := wallet.WaitReceipt(ctx, hash)
	s.Stop()

	switch {
	case err == nil:
		_ = store.UpdateStatus(hash.Hex(), history.StatusConfirmed, "")
		if !quiet {
			color.Green("\n✓ Confirmed in block %d", receipt.BlockNumber)
		}
		return nil
	case errors.Is(err, chain.ErrConfirmTimeout), errors.Is(err, context.Canceled):
		if !quiet {
			color.Yellow("\nStill pending. Check later with:")
			color.Cyan("  devcamp status %s --watch\n", hash.Hex())
		}
		return err
	default:
		_ = store.UpdateStatus(hash.Hex(), history.StatusFailed, err.Error())
		return err
	}
}

func printTxLink(cfg *config.Config, hash common.Hash) {
	fmt.Printf("  Transaction: %s\n", color.CyanString(hash.Hex()))
	fmt.Printf("  Explorer:    %s\n", color.HiBlackString(explorerLink(cfg, hash)))
}

func explorerLink(cfg *config.Config, hash common.Hash) string {
	return tokens.ExplorerTxURL(cfg.ChainID, cfg.ExplorerURL, hash.Hex())
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "CONFIRMED":
		return color.GreenString(status)
	case "PENDING":
		return color.YellowString(status)
	case "FAILED":
		return color.RedString(status)
	default:
		return status
	}
}
