package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"satoshicheckout/internal/config"
	"satoshicheckout/internal/store"
)

func statsCmd(envFile *string) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show order statistics from the SQLite status store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = config.Load(*envFile).SQLitePath
			}
			st, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer st.Close()

			stats, err := st.GetStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}
			printStats(stats)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default $SQLITE_PATH)")
	return cmd
}

func printStats(stats *store.Stats) {
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║        SatoshiCheckout Statistics        ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Total Orders:    %-23d║\n", stats.TotalOrders)
	fmt.Printf("║  ├─ Paid:         %-23d║\n", stats.PaidOrders)
	fmt.Printf("║  ├─ New:          %-23d║\n", stats.NewOrders)
	fmt.Printf("║  └─ Other:        %-23d║\n", stats.OtherOrders)
	fmt.Println("╠══════════════════════════════════════════╣")
	if !stats.OldestOrder.IsZero() {
		fmt.Printf("║  Oldest Order:    %-23s║\n", stats.OldestOrder.Format("2006-01-02 15:04"))
		fmt.Printf("║  Newest Order:    %-23s║\n", stats.NewestOrder.Format("2006-01-02 15:04"))
	} else {
		fmt.Println("║  No orders in database                   ║")
	}
	if len(stats.DailyPaid) > 0 {
		fmt.Println("╠══════════════════════════════════════════╣")
		fmt.Println("║  Paid Orders (last 14 days)              ║")
		fmt.Println("║  ──────────────────────────────────────  ║")
		for _, ds := range stats.DailyPaid {
			fmt.Printf("║  %s:    %5d orders             ║\n", ds.Date, ds.PaidOrders)
		}
	}
	fmt.Println("╚══════════════════════════════════════════╝")
}
