package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"devcamp/config"
	"devcamp/pkg/chain"
	"devcamp/pkg/history"
	"devcamp/pkg/tokens"
	"devcamp/pkg/units"
)

var (
	tokenOverride string
	noWait        bool
)

var sendEthCmd = &cobra.Command{
	Use:   "send-eth <to> <amount>",
	Short: "Send the native coin",
	Long: `Send the chain's native coin (MATIC on Polygon) to an address.

Examples:
  devcamp send-eth 0x1234...abcd 0.1
  devcamp send-eth 0x1234...abcd 0.1 --yes --no-wait`,
	Args: cobra.ExactArgs(2),
	Run:  runSendEth,
}

var sendERC20Cmd = &cobra.Command{
	Use:   "send-erc20 <to> <amount>",
	Short: "Send the bootcamp ERC-20 token",
	Long: `Transfer the configured ERC-20 token (erc20_contract_address) to an
address. --token sends a different ERC-20 contract instead.

Examples:
  devcamp send-erc20 0x1234...abcd 25
  devcamp send-erc20 0x1234...abcd 1.5 --token 0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174`,
	Args: cobra.ExactArgs(2),
	Run:  runSendERC20,
}

func init() {
	rootCmd.AddCommand(sendEthCmd)
	rootCmd.AddCommand(sendERC20Cmd)

	for _, c := range []*cobra.Command{sendEthCmd, sendERC20Cmd} {
		c.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
		c.Flags().BoolVar(&noWait, "no-wait", false, "Return after broadcasting without waiting for confirmation")
	}
	sendERC20Cmd.Flags().StringVar(&tokenOverride, "token", "", "ERC-20 contract address (defaults to erc20_contract_address)")
}

func runSendEth(cmd *cobra.Command, args []string) {
	to, err := parseAddress(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	amount, err := units.Parse(args[1], 18)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wallet := openWallet(ctx, cfg, true)
	defer wallet.Close()
	store := openHistory(cfg)

	if !jsonOutput {
		displayTransfer("SEND NATIVE", wallet.Address(), to, args[1], "native")
	}
	if !noConfirm && !jsonOutput && !confirmPrompt("Send transaction?") {
		fmt.Println("\nTransfer cancelled.")
		return
	}

	s := newSpinner("Sending transaction...", jsonOutput)
	hash, err := wallet.SendNative(ctx, to, amount)
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	rec := &history.Record{
		Kind:    history.KindSendNative,
		ChainID: cfg.ChainID,
		TxHash:  hash.Hex(),
		From:    wallet.Address().Hex(),
		To:      to.Hex(),
		Amount:  args[1],
		Summary: fmt.Sprintf("send %s native to %s", args[1], to.Hex()),
	}
	finishTransfer(ctx, cfg, wallet, store, rec, hash, jsonOutput)
}

func runSendERC20(cmd *cobra.Command, args []string) {
	to, err := parseAddress(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig(cmd)

	token, err := erc20Address(cfg, tokenOverride)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wallet := openWallet(ctx, cfg, true)
	defer wallet.Close()
	store := openHistory(cfg)

	// registry tokens skip the decimals/symbol round trips
	symbol, decimals := "", uint8(0)
	if t, ok := tokens.ForChain(cfg.ChainID).ByAddress(token); ok {
		symbol, decimals = t.Symbol, t.Decimals
	} else {
		if symbol, err = wallet.Symbol(ctx, token); err != nil {
			printError(fmt.Errorf("failed to read token symbol: %w", err))
			os.Exit(1)
		}
		if decimals, err = wallet.Decimals(ctx, token); err != nil {
			printError(fmt.Errorf("failed to read token decimals: %w", err))
			os.Exit(1)
		}
	}

	amount, err := units.Parse(args[1], decimals)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		displayTransfer("SEND "+symbol, wallet.Address(), to, args[1], symbol)
	}
	if !noConfirm && !jsonOutput && !confirmPrompt("Send transaction?") {
		fmt.Println("\nTransfer cancelled.")
		return
	}

	s := newSpinner("Sending transaction...", jsonOutput)
	hash, err := wallet.Transfer(ctx, token, to, amount)
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	rec := &history.Record{
		Kind:    history.KindSendERC20,
		ChainID: cfg.ChainID,
		TxHash:  hash.Hex(),
		From:    wallet.Address().Hex(),
		To:      to.Hex(),
		Token:   symbol,
		Amount:  args[1],
		Summary: fmt.Sprintf("send %s %s to %s", args[1], symbol, to.Hex()),
	}
	finishTransfer(ctx, cfg, wallet, store, rec, hash, jsonOutput)
}

// finishTransfer records the handle and, unless --no-wait, waits for it
func finishTransfer(ctx context.Context, cfg *config.Config, wallet *chain.Wallet, store *history.Store, rec *history.Record, hash common.Hash, jsonOutput bool) {
	recordTx(store, rec)

	if !jsonOutput {
		color.Green("\n✓ Transaction sent")
		printTxLink(cfg, hash)
	}

	if !noWait {
		if err := settleTx(ctx, wallet, store, cfg, hash, jsonOutput); err != nil && !jsonOutput {
			printError(err)
		}
	}

	if jsonOutput {
		if stored, err := store.Get(rec.TxHash); err == nil {
			printJSON(stored)
		}
		return
	}
	fmt.Println()
}

func displayTransfer(title string, from, to common.Address, amount, symbol string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("  %s", title)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  From:    %s\n", color.CyanString(from.Hex()))
	fmt.Printf("  To:      %s\n", color.CyanString(to.Hex()))
	fmt.Printf("  Amount:  %s %s\n", amount, color.YellowString(symbol))
	fmt.Println("\n" + strings.Repeat("=", 60))
}
