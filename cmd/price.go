package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"devcamp/pkg/chain"
	"devcamp/pkg/client"
	"devcamp/pkg/parser"
	"devcamp/pkg/tokens"
	"devcamp/pkg/units"
)

var priceCmd = &cobra.Command{
	Use:   "price <amount> <sell-token> to <buy-token>",
	Short: "Show an indicative price without trading",
	Long: `Fetch an indicative (non-binding) price from the aggregator.

No wallet is needed. When a private key is configured its address is sent
as the taker so the aggregator can check balances.

Examples:
  devcamp price 10 WMATIC to USDC
  devcamp price 250 usdc for weth --json`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPrice,
}

func init() {
	rootCmd.AddCommand(priceCmd)
}

func runPrice(cmd *cobra.Command, args []string) {
	swapReq, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig(cmd)

	sell, buy, err := parser.Resolve(swapReq, tokens.ForChain(cfg.ChainID))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	amount, err := units.Parse(swapReq.Amount, sell.Decimals)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	params := client.Params{SellToken: sell.Address, BuyToken: buy.Address, SellAmount: amount}
	if cfg.PrivateKey != "" {
		if key, err := chain.ParsePrivateKey(cfg.PrivateKey); err == nil {
			params.Taker = crypto.PubkeyToAddress(key.PublicKey)
		}
	}

	s := newSpinner("Fetching price...", jsonOutput)
	price, err := newAggregator(cfg).Price(context.Background(), params)
	s.Stop()

	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			for _, ve := range apiErr.ValidationErrors {
				color.Red("  %s", ve.String())
			}
		}
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(price)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                   INDICATIVE PRICE")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Sell:              %s %s\n", swapReq.Amount, color.YellowString(sell.Symbol))
	fmt.Printf("  Buy:               ~%s %s\n", units.FormatString(price.BuyAmount, buy.Decimals), color.YellowString(buy.Symbol))
	fmt.Printf("  Price:             %s %s/%s\n", price.Price, buy.Symbol, sell.Symbol)
	if price.EstimatedGas != "" {
		fmt.Printf("  Estimated Gas:     %s\n", price.EstimatedGas)
	}
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
