package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"devcamp/pkg/tokens"
	"devcamp/pkg/units"
)

var showAllTokens bool

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the connected account and its balances",
	Long: `Show the configured account: address, network, native balance and the
bootcamp token balance. --all adds every token of the swap list.

Examples:
  devcamp account
  devcamp account --all --json`,
	Run: runAccount,
}

func init() {
	rootCmd.AddCommand(accountCmd)

	accountCmd.Flags().BoolVar(&showAllTokens, "all", false, "Include balances of every listed token")
}

type tokenBalance struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func runAccount(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig(cmd)
	ctx := context.Background()

	wallet := openWallet(ctx, cfg, true)
	defer wallet.Close()
	owner := wallet.Address()

	bootcamp, err := erc20Address(cfg, "")
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	s := newSpinner("Reading balances...", jsonOutput)

	var native string
	var bootcampBal tokenBalance
	listed := make([]tokenBalance, 0)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bal, err := wallet.NativeBalance(gctx, owner)
		if err != nil {
			return err
		}
		native = units.Format(bal, 18)
		return nil
	})
	g.Go(func() error {
		symbol, err := wallet.Symbol(gctx, bootcamp)
		if err != nil {
			return fmt.Errorf("failed to read token symbol: %w", err)
		}
		decimals, err := wallet.Decimals(gctx, bootcamp)
		if err != nil {
			return fmt.Errorf("failed to read token decimals: %w", err)
		}
		bal, err := wallet.TokenBalance(gctx, bootcamp, owner)
		if err != nil {
			return err
		}
		bootcampBal = tokenBalance{Symbol: symbol, Address: bootcamp.Hex(), Balance: units.Format(bal, decimals)}
		return nil
	})
	if showAllTokens {
		list := tokens.ForChain(cfg.ChainID).List()
		listed = make([]tokenBalance, len(list))
		for i, t := range list {
			g.Go(func() error {
				bal, err := wallet.TokenBalance(gctx, t.Address, owner)
				if err != nil {
					return fmt.Errorf("%s: %w", t.Symbol, err)
				}
				listed[i] = tokenBalance{Symbol: t.Symbol, Address: t.Address.Hex(), Balance: units.Format(bal, t.Decimals)}
				return nil
			})
		}
	}
	err = g.Wait()
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	chainID := wallet.ChainID().Int64()
	if jsonOutput {
		printJSON(map[string]interface{}{
			"address":  owner.Hex(),
			"chain_id": chainID,
			"network":  tokens.ChainName(chainID),
			"native":   native,
			"token":    bootcampBal,
			"tokens":   listed,
		})
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                          ACCOUNT")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\n  Address:         %s\n", color.CyanString(owner.Hex()))
	fmt.Printf("  Network:         %s (%d)\n", tokens.ChainName(chainID), chainID)
	fmt.Printf("  Balance:         %s\n", native)
	fmt.Printf("  %-16s %s\n", bootcampBal.Symbol+":", bootcampBal.Balance)

	if len(listed) > 0 {
		fmt.Println("\n" + strings.Repeat("-", 70))
		for _, b := range listed {
			fmt.Printf("  %-16s %s\n", color.YellowString(b.Symbol), b.Balance)
		}
	}
	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}
