package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"devcamp/config"
	"devcamp/pkg/metrics"
	"devcamp/pkg/server"
	"devcamp/pkg/siwe"
	"devcamp/pkg/tokens"
)

var (
	listenAddr    string
	secureCookies bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP backend (price/quote proxy and SIWE)",
	Long: `Serve the backend the browser app talks to:

  GET    /api/price    indicative price, proxied to the aggregator
  GET    /api/quote    firm quote, proxied to the aggregator
  PUT    /api/siwe     issue a sign-in nonce
  POST   /api/siwe     verify {message, signature} and start a session
  GET    /api/siwe     current session {address, chainId}
  DELETE /api/siwe     end the session
  GET    /metrics      Prometheus metrics
  GET    /healthz      liveness

Nonces are kept in memory unless redis.addr is set.

Examples:
  devcamp serve
  devcamp serve --listen :8080 --secure-cookies`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (defaults to server.listen)")
	serveCmd.Flags().BoolVar(&secureCookies, "secure-cookies", false, "Mark the session cookie Secure (HTTPS deployments)")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	if err := cfg.RequireSession(); err != nil {
		printError(err)
		os.Exit(1)
	}
	if listenAddr == "" {
		listenAddr = cfg.Server.Listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nonces, backend := nonceStore(ctx, cfg)
	chainIDs := lo.Uniq([]int64{cfg.ChainID, tokens.ChainPolygon, tokens.ChainZkEVMCardona, tokens.ChainEthereum})

	svc := siwe.NewService(siwe.Config{
		Domain:   cfg.SIWE.Domain,
		URI:      cfg.SIWE.URI,
		ChainIDs: chainIDs,
		NonceTTL: cfg.SIWE.NonceTTL,
	}, nonces, siwe.NewSessions(cfg.SIWE.JWTSecret, cfg.SIWE.Domain, cfg.SIWE.SessionTTL))

	srv := server.New(server.Options{
		Aggregator:    newAggregator(cfg),
		SIWE:          svc,
		Metrics:       metrics.New(),
		SecureCookies: secureCookies,
	})

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                      DEVCAMP BACKEND")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\n  Listening:       %s\n", color.CyanString(listenAddr))
	fmt.Printf("  Aggregator:      %s\n", cfg.Aggregator.BaseURL)
	fmt.Printf("  SIWE domain:     %s\n", cfg.SIWE.Domain)
	fmt.Printf("  Chains:          %v\n", chainIDs)
	fmt.Printf("  Nonce store:     %s\n", backend)
	if cfg.WalletConnectProject != "" {
		fmt.Printf("  WalletConnect:   %s\n", cfg.WalletConnectProject)
	}
	color.Yellow("\n• Press Ctrl+C to stop gracefully\n")
	fmt.Println(strings.Repeat("=", 70) + "\n")

	if err := srv.ListenAndServe(ctx, listenAddr); err != nil {
		printError(err)
		os.Exit(1)
	}
	color.Green("\n✓ Server stopped.\n")
}

// nonceStore picks Redis when configured so several instances share nonces
func nonceStore(ctx context.Context, cfg *config.Config) (siwe.NonceStore, string) {
	if cfg.Redis.Addr == "" {
		return siwe.NewMemoryStore(time.Minute), "memory"
	}
	client, err := siwe.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return siwe.NewRedisStore(client), "redis " + cfg.Redis.Addr
}
