package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"devcamp/pkg/chain"
	"devcamp/pkg/siwe"
)

var (
	backendURL string
	logout     bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to a devcamp backend with Ethereum",
	Long: `Run the Sign-In-With-Ethereum handshake against a running backend with
the configured key: fetch a nonce, sign the message, verify it and show the
resulting session. The session lives only for this command.

Examples:
  devcamp login
  devcamp login --backend https://devcamp.example.com
  devcamp login --logout`,
	Run: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVar(&backendURL, "backend", "", "Backend base URL (defaults to siwe.uri)")
	loginCmd.Flags().BoolVar(&logout, "logout", false, "Sign out again after signing in")
}

func runLogin(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig(cmd)

	if cfg.PrivateKey == "" {
		color.Yellow("\nwallet not connected. Please set DEVCAMP_PRIVATE_KEY or private_key in .devcamp.yaml\n")
		os.Exit(1)
	}
	key, err := chain.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if backendURL == "" {
		backendURL = cfg.SIWE.URI
	}

	c, err := siwe.NewClient(backendURL, key, cfg.ChainID, siwe.ClientOptions{
		Statement: cfg.SIWE.Statement,
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	ctx := context.Background()

	s := newSpinner("Signing in...", jsonOutput)
	session, err := c.SignIn(ctx)
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(siwe.SessionResponse{Address: session.Address.Hex(), ChainID: session.ChainID})
	} else {
		fmt.Println("\n" + strings.Repeat("=", 60))
		color.Green("                   SIGNED IN")
		fmt.Println(strings.Repeat("=", 60))
		fmt.Printf("\n  Backend:   %s\n", backendURL)
		fmt.Printf("  Address:   %s\n", color.CyanString(session.Address.Hex()))
		fmt.Printf("  Chain:     %d\n", session.ChainID)
		fmt.Println("\n" + strings.Repeat("=", 60))
	}

	if logout {
		if err := c.SignOut(ctx); err != nil {
			printError(err)
			os.Exit(1)
		}
		if !jsonOutput {
			printSuccess("Signed out.")
		}
	}
}
