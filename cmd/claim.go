package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"devcamp/pkg/history"
)

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim bootcamp tokens from the faucet contract",
	Long: `Call claim(address) on the bootcamp token for the configured account.

Examples:
  devcamp claim
  devcamp claim --token 0xd66cd7D7698706F8437427A3cAb537aBc12c8C88 --no-wait`,
	Run: runClaim,
}

func init() {
	rootCmd.AddCommand(claimCmd)

	claimCmd.Flags().StringVar(&tokenOverride, "token", "", "Token contract address (defaults to erc20_contract_address)")
	claimCmd.Flags().BoolVar(&noWait, "no-wait", false, "Return after broadcasting without waiting for confirmation")
}

func runClaim(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig(cmd)

	// claiming needs a signer, mirror the "connect your wallet" warning
	if err := cfg.RequireWallet(); err != nil {
		color.Yellow("\n%v\n", err)
		os.Exit(1)
	}

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

	s := newSpinner("Claiming...", jsonOutput)
	hash, err := wallet.Claim(ctx, token)
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	rec := &history.Record{
		Kind:    history.KindClaim,
		ChainID: cfg.ChainID,
		TxHash:  hash.Hex(),
		From:    wallet.Address().Hex(),
		To:      token.Hex(),
		Summary: "claim " + token.Hex(),
	}
	finishTransfer(ctx, cfg, wallet, store, rec, hash, jsonOutput)
}
