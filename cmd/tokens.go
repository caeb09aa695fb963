package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"devcamp/pkg/tokens"
)

var filterSymbol string

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List the tokens available to swap",
	Long: `List the tokens of the configured chain's swap list.

Examples:
  devcamp list-tokens
  devcamp list-tokens --symbol USD`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig(cmd)

	list := tokens.ForChain(cfg.ChainID).List()
	if filterSymbol != "" {
		list = lo.Filter(list, func(t tokens.Token, _ int) bool {
			return strings.Contains(strings.ToUpper(t.Symbol), strings.ToUpper(filterSymbol))
		})
	}

	if jsonOutput {
		printJSON(list)
		return
	}
	displayTokens(list, cfg.ChainID)
}

func displayTokens(list []tokens.Token, chainID int64) {
	if len(list) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	color.Cyan("\n%s", strings.ToUpper(tokens.ChainName(chainID)))
	fmt.Println(strings.Repeat("-", 90))
	for _, t := range list {
		fmt.Printf("  %-10s  %-16s  %2d decimals  %s\n",
			color.YellowString(t.Symbol),
			t.Name,
			t.Decimals,
			color.HiBlackString(t.Address.Hex()))
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens\n\n", len(list))
}
