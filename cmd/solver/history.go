package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clicksolve/captcha-agent/internal/db"
)

var (
	// History command flags
	historyOutcome string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past solve runs",
	Long:  `Print recent solve runs from the local history database, newest first.`,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyOutcome, "outcome", "all", "Filter by outcome (solved, abandoned, fatal, all)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum records to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	history, err := db.New(config.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer history.Close()

	records, err := history.ListSolves(historyOutcome, historyLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list solves: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No solve runs recorded.")
		return nil
	}

	total, err := history.CountSolves(historyOutcome)
	if err != nil {
		return err
	}

	fmt.Printf("%-36s  %-10s  %-8s  %-7s  %-9s  %s\n",
		"ID", "OUTCOME", "ATTEMPTS", "CLICKED", "DURATION", "URL")
	for _, rec := range records {
		fmt.Printf("%-36s  %-10s  %-8d  %-7d  %-9s  %s\n",
			rec.ID,
			rec.Outcome,
			rec.Attempts,
			rec.PointsClicked,
			(time.Duration(rec.Duration) * time.Millisecond).Round(time.Millisecond),
			rec.PageURL,
		)
	}
	fmt.Printf("\nShowing %d of %d records\n", len(records), total)

	return nil
}
