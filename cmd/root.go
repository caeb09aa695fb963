package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "devcamp",
	Short: "A CLI for wallet actions and token swaps on Polygon",
	Long: `devcamp is a command-line wallet for the bootcamp token and for swaps
through a 0x-style liquidity aggregator. It can also serve the HTTP backend
(price/quote proxy and Sign-In-With-Ethereum) used by the browser app.

Examples:
  devcamp swap 10 WMATIC to USDC
  devcamp price 1.5 matic for usdc
  devcamp account
  devcamp send-eth 0x1234... 0.1
  devcamp status 0xabc...def --watch
  devcamp serve`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
