package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nightdesk/nightdesk/errors"
)

// DbCmd groups database operations.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the nightdesk database",
	Long: `db — Manage nightdesk database operations

Examples:
  nightdesk db migrate    # Apply pending schema migrations
  nightdesk db stats      # Show database statistics`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display job, reminder, and notification dedup counts by status",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// openDatabase migrates as a side effect; run it for that.
	database, err := openDatabase(cfg, log)
	if err != nil {
		return errors.Wrap(err, "migrating database")
	}
	defer database.Close()

	fmt.Printf("Database up to date: %s\n", cfg.Database.Path)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg, log)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer database.Close()

	fmt.Println("Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Database Path: %s\n\n", cfg.Database.Path)

	fmt.Println("Jobs by status:")
	rows, err := database.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status ORDER BY status`)
	if err != nil {
		return errors.Wrap(err, "querying job stats")
	}
	defer rows.Close()
	total := 0
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return errors.Wrap(err, "scanning job stats")
		}
		fmt.Printf("  %-10s %d\n", status, count)
		total += count
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterating job stats")
	}
	fmt.Printf("  %-10s %d\n\n", "total", total)

	var reminders, fired int
	err = database.QueryRow(`SELECT COUNT(*), COALESCE(SUM(fired), 0) FROM reminders`).Scan(&reminders, &fired)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "querying reminder stats")
	}
	fmt.Printf("Reminders: %d (%d fired)\n", reminders, fired)

	var dedup int
	err = database.QueryRow(`SELECT COUNT(*) FROM notification_dedup`).Scan(&dedup)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "querying dedup stats")
	}
	fmt.Printf("Dedup records: %d\n", dedup)

	return nil
}
