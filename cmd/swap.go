package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"devcamp/config"
	"devcamp/pkg/chain"
	"devcamp/pkg/client"
	"devcamp/pkg/history"
	"devcamp/pkg/logger"
	"devcamp/pkg/metrics"
	"devcamp/pkg/parser"
	"devcamp/pkg/swap"
	"devcamp/pkg/tokens"
	"devcamp/pkg/units"
)

var (
	noConfirm     bool
	metricsListen string
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <sell-token> to <buy-token>",
	Short: "Swap tokens through the liquidity aggregator",
	Long: `Swap tokens on the configured chain through a 0x-style aggregator.

The flow mirrors the swap dialog: fetch an indicative price, approve the
exchange proxy for exactly the sell amount when the allowance is short,
review a firm quote, then place the order and wait for confirmation.
Declining the order lets you modify the sell amount and try again.

Examples:
  devcamp swap 10 WMATIC to USDC
  devcamp swap 1.5 matic for usdc
  devcamp swap sell 100 USDC into DAI --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompts")
	swapCmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Expose swap metrics on this address while running (e.g. :9100)")
}

func runSwap(cmd *cobra.Command, args []string) {
	swapReq, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig(cmd)

	registry := tokens.ForChain(cfg.ChainID)
	sell, buy, err := parser.Resolve(swapReq, registry)
	if err != nil {
		printError(err)
		color.Cyan("  Supported tokens: %s\n", strings.Join(registry.Symbols(), ", "))
		os.Exit(1)
	}
	spender, err := exchangeProxy(cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wallet := openWallet(ctx, cfg, true)
	defer wallet.Close()
	store := openHistory(cfg)

	m := metrics.New()
	if metricsListen != "" {
		go serveMetrics(ctx, metricsListen, m)
	}

	ctrl := swap.New(newAggregator(cfg), wallet, swap.Options{
		Spender:  spender,
		Sell:     sell,
		Buy:      buy,
		Recorder: m,
	})
	defer ctrl.Close()

	s := newSpinner("Reading balance and allowance...", jsonOutput)
	err = ctrl.RefreshAccount(ctx)
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	amount := swapReq.Amount
	for {
		if err := ctrl.SetSellAmount(amount); err != nil {
			printError(err)
			os.Exit(1)
		}

		s = newSpinner("Fetching price...", jsonOutput)
		v := awaitPrice(ctx, ctrl)
		s.Stop()

		if !jsonOutput {
			displayPrice(v)
		}
		if len(v.ValidationErrors) > 0 {
			for _, ve := range v.ValidationErrors {
				color.Red("  %s", ve.String())
			}
			printError(client.ErrValidation)
			os.Exit(1)
		}
		if v.Err != nil {
			printError(v.Err)
			os.Exit(1)
		}
		if v.Price == nil {
			printError(swap.ErrNoPrice)
			os.Exit(1)
		}

		if v.Action == swap.ActionApprove {
			question := fmt.Sprintf("Approve the exchange proxy to spend exactly %s %s?", v.Form.SellAmount, sell.Symbol)
			if !noConfirm && !confirmPrompt(question) {
				fmt.Println("\nSwap cancelled.")
				return
			}
			if err := approveSell(ctx, cfg, ctrl, store, wallet.Address().Hex(), spender, jsonOutput); err != nil {
				printError(err)
				os.Exit(1)
			}
			v = ctrl.View()
		}

		switch {
		case v.Action == swap.ActionInsufficientBalance:
			printError(fmt.Errorf("%w: have %s %s, need %s", swap.ErrInsufficientBalance,
				formatAmount(v.Balance, sell.Decimals), sell.Symbol, v.Form.SellAmount))
			os.Exit(1)
		case v.Action != swap.ActionReviewTrade || !v.ActionEnabled:
			printError(fmt.Errorf("cannot review trade (%s)", v.Action))
			os.Exit(1)
		}

		s = newSpinner("Fetching firm quote...", jsonOutput)
		err = ctrl.Review(ctx)
		s.Stop()
		if err != nil {
			printError(err)
			os.Exit(1)
		}

		v = ctrl.View()
		if !jsonOutput {
			displayQuote(v)
		}

		if noConfirm || confirmPrompt("Place order?") {
			break
		}

		if err := ctrl.ModifySwap(); err != nil {
			printError(err)
			os.Exit(1)
		}
		amount = readLine(fmt.Sprintf("\nNew sell amount in %s (blank to cancel): ", sell.Symbol))
		if amount == "" {
			fmt.Println("\nSwap cancelled.")
			return
		}
	}

	v := ctrl.View()
	rec := &history.Record{
		Kind:    history.KindSwap,
		ChainID: cfg.ChainID,
		From:    wallet.Address().Hex(),
		Token:   sell.Symbol,
		Amount:  v.Form.SellAmount,
		Summary: fmt.Sprintf("%s %s -> ~%s %s", v.Form.SellAmount, sell.Symbol, v.BuyAmount, buy.Symbol),
	}
	if v.Quote != nil {
		rec.To = v.Quote.To.Hex()
	}

	s = newSpinner("Placing order...", jsonOutput)
	hash, err := ctrl.PlaceOrder(ctx)
	s.Stop()

	if hash != (common.Hash{}) {
		rec.TxHash = hash.Hex()
		rec.Status, rec.Error = txOutcome(err)
		recordTx(store, rec)
	}
	if jsonOutput && rec.TxHash != "" {
		printJSON(rec)
	}
	if err != nil {
		if hash != (common.Hash{}) && !jsonOutput {
			printTxLink(cfg, hash)
			if rec.Status == history.StatusPending {
				color.Yellow("\nStill pending. Check later with:")
				color.Cyan("  devcamp status %s --watch\n", hash.Hex())
			}
		}
		printError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		color.Green("\n✓ Swap confirmed!")
		printTxLink(cfg, hash)
		fmt.Println()
	}
}

// approveSell runs the approval sub-flow and records its transaction
func approveSell(ctx context.Context, cfg *config.Config, ctrl *swap.Controller, store *history.Store, from string, spender common.Address, quiet bool) error {
	form := ctrl.View().Form

	s := newSpinner("Approving...", quiet)
	hash, err := ctrl.Approve(ctx)
	s.Stop()

	if hash != (common.Hash{}) {
		status, errMsg := txOutcome(err)
		recordTx(store, &history.Record{
			Kind:    history.KindApprove,
			ChainID: cfg.ChainID,
			TxHash:  hash.Hex(),
			From:    from,
			To:      spender.Hex(),
			Token:   form.SellToken.Symbol,
			Amount:  form.SellAmount,
			Summary: fmt.Sprintf("approve %s %s", form.SellAmount, form.SellToken.Symbol),
			Status:  status,
			Error:   errMsg,
		})
	}
	if err != nil {
		return err
	}
	if !quiet {
		color.Green("\n✓ Approval confirmed")
		printTxLink(cfg, hash)
	}
	return nil
}

// awaitPrice blocks until the in-flight price request settles
func awaitPrice(ctx context.Context, ctrl *swap.Controller) swap.View {
	for {
		v := ctrl.View()
		if v.Stage != swap.StagePriceLoading {
			return v
		}
		select {
		case <-ctrl.Changes():
		case <-ctx.Done():
			return ctrl.View()
		}
	}
}

// txOutcome maps a wait result to a ledger status. A transaction that has
// not mined yet stays pending so status --watch can settle it later.
func txOutcome(err error) (history.Status, string) {
	switch {
	case err == nil:
		return history.StatusConfirmed, ""
	case errors.Is(err, chain.ErrConfirmTimeout),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return history.StatusPending, ""
	default:
		return history.StatusFailed, err.Error()
	}
}

func displayPrice(v swap.View) {
	sell, buy := v.Form.SellToken, v.Form.BuyToken

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                      SWAP PRICE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Sell:              %s %s\n", v.Form.SellAmount, color.YellowString(sell.Symbol))
	if v.BuyAmount != "" {
		fmt.Printf("  Buy:               ~%s %s\n", v.BuyAmount, color.YellowString(buy.Symbol))
	}
	fmt.Printf("  Balance:           %s %s\n", formatAmount(v.Balance, sell.Decimals), sell.Symbol)
	fmt.Printf("  Allowance:         %s %s\n", formatAmount(v.Allowance, sell.Decimals), sell.Symbol)
	if v.Action != swap.ActionNone {
		fmt.Printf("  Next step:         %s\n", color.CyanString(string(v.Action)))
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
}

func displayQuote(v swap.View) {
	if v.Quote == nil {
		return
	}
	q := v.Quote
	sell, buy := v.Form.SellToken, v.Form.BuyToken

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                      SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s\n", units.FormatString(q.SellAmount, sell.Decimals), color.YellowString(sell.Symbol))
	fmt.Printf("  To:                ~%s %s\n", v.BuyAmount, color.YellowString(buy.Symbol))
	fmt.Printf("  Price:             %s %s/%s\n", q.Price, buy.Symbol, sell.Symbol)
	if q.GuaranteedPrice != "" {
		fmt.Printf("  Guaranteed Price:  %s\n", q.GuaranteedPrice)
	}
	fmt.Printf("  Gas:               %s @ %s wei\n", q.Gas, q.GasPrice)
	fmt.Printf("  Contract:          %s\n", color.HiBlackString(q.To.Hex()))

	fmt.Println("\n" + strings.Repeat("=", 60))
}

func formatAmount(v *big.Int, decimals uint8) string {
	if v == nil {
		return "unknown"
	}
	return units.FormatFixed(v, decimals, 4)
}

func exchangeProxy(cfg *config.Config) (common.Address, error) {
	if cfg.ExchangeProxy != "" {
		return parseAddress(cfg.ExchangeProxy)
	}
	return tokens.ExchangeProxy(cfg.ChainID), nil
}

func newAggregator(cfg *config.Config) *client.Client {
	return client.New(client.Options{
		BaseURL:   cfg.Aggregator.BaseURL,
		APIKey:    cfg.Aggregator.APIKey,
		PricePath: cfg.Aggregator.PricePath,
		QuotePath: cfg.Aggregator.QuotePath,
		Timeout:   cfg.Aggregator.Timeout,
	})
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) {
	srv := &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log := logger.For(logger.CategoryHTTP)
		log.Warn().Err(err).Str("addr", addr).Msg("metrics listener stopped")
	}
}
