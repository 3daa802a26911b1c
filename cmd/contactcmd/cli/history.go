// ABOUTME: gateway history: audit table of past and queued communications

package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jnun/contactcmd/internal/store"
)

var (
	historyStatus string
	historyAgent  string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show communication history",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListHistory(context.Background(), store.HistoryFilter{
			Status: historyStatus,
			Agent:  historyAgent,
			Limit:  historyLimit,
		})
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("no history entries")
			return nil
		}

		fmt.Printf("%-17s %-9s %-14s %-26s %-9s %s\n",
			"TIMESTAMP", "STATUS", "AGENT", "RECIPIENT", "CHANNEL", "PREVIEW")
		for _, e := range entries {
			fmt.Printf("%-17s %-9s %-14s %-26s %-9s %s\n",
				e.CreatedAt.Local().Format("2006-01-02 15:04"),
				renderHistoryStatus(e.Status),
				truncateText(e.AgentName, 14),
				truncateText(e.RecipientAddress, 26),
				e.Channel,
				truncateText(previewText(e), 36))
			if e.Status == store.StatusFailed && e.ErrorMessage != "" {
				color.Red("  error: %s", e.ErrorMessage)
			}
		}

		if len(entries) == historyLimit {
			fmt.Printf("\nshowing latest %d entries; use --limit for more\n", historyLimit)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "filter by status (pending, flagged, approved, denied, sent, failed)")
	historyCmd.Flags().StringVar(&historyAgent, "agent", "", "filter by agent name substring")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum entries to show")
}

func renderHistoryStatus(status string) string {
	switch status {
	case store.StatusSent:
		return color.GreenString("%-9s", status)
	case store.StatusFailed, store.StatusDenied:
		return color.RedString("%-9s", status)
	case store.StatusFlagged:
		return color.YellowString("%-9s", status)
	default:
		return fmt.Sprintf("%-9s", status)
	}
}

func previewText(e *store.HistoryEntry) string {
	if e.Subject != "" {
		return e.Subject
	}
	return e.Body
}
