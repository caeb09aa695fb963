package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"devcamp/pkg/history"
)

var (
	historyKind   string
	historyStatus string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List submitted transactions",
	Long: `List approvals, swaps, transfers and claims sent from this machine,
newest first.

Examples:
  devcamp history
  devcamp history --kind swap --limit 5
  devcamp history --status pending --json`,
	Run: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyKind, "kind", "", "Filter by kind (approve, swap, send-native, send-erc20, claim)")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status (pending, confirmed, failed)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of records to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig(cmd)
	store := openHistory(cfg)

	records := store.List(history.Filter{
		Kind:   history.Kind(strings.ToLower(historyKind)),
		Status: history.Status(strings.ToLower(historyStatus)),
		Limit:  historyLimit,
	})

	if jsonOutput {
		printJSON(records)
		return
	}

	if len(records) == 0 {
		color.Yellow("\nNo transactions found.\n")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	color.Green("                                      TRANSACTIONS")
	fmt.Println(strings.Repeat("=", 100))
	fmt.Printf("\n%-20s %-12s %-20s %-45s\n", "Time", "Kind", "Status", "Summary")
	fmt.Println(strings.Repeat("-", 100))

	for _, r := range records {
		summary := r.Summary
		if len(summary) > 45 {
			summary = summary[:42] + "..."
		}
		fmt.Printf("%-20s %-12s %-29s %-45s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Kind,
			getColoredStatus(string(r.Status)),
			summary)
		fmt.Printf("  %s\n", color.HiBlackString(r.TxHash))
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	fmt.Printf("\nShowing %d of %d transactions (%s)\n\n", len(records), store.Count(), store.FilePath())
}
