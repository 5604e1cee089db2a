package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nightdesk/nightdesk/cmd/nightdesk/commands"
)

var rootCmd = &cobra.Command{
	Use:   "nightdesk",
	Short: "nightdesk - personal assistant background engine",
	Long: `nightdesk - an autonomous background engine for a personal assistant.

nightdesk runs durable scheduled jobs, reminders, and external event
checks in failure-isolated loops, deduplicates everything it tells you,
and delivers notifications over WebSocket.

Available commands:
  serve   - Start the engine and delivery server
  db      - Manage the nightdesk database
  version - Show version information

Examples:
  nightdesk serve               # Start the engine in foreground
  nightdesk db migrate          # Apply pending schema migrations
  nightdesk db stats            # Show database statistics`,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: user config dir)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
