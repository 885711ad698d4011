// Package main is the entry point for the Hoaxify database migration tool.
// It applies the embedded schema migrations of the configured driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/prn-tf/hoaxify/internal/config"
	"github.com/prn-tf/hoaxify/internal/logging"
	"github.com/prn-tf/hoaxify/internal/repository/factory"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	switch command {
	case "help", "-h", "--help":
		printUsage()
		return
	case "up", "down", "status", "version":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err := run(*configPath, command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, command string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging)

	// Migrations are driven explicitly here.
	cfg.Database.AutoMigrate = false

	ctx := context.Background()
	store, err := factory.NewFactory(cfg.Database, logger).Open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	m := store.Migrator

	switch command {
	case "up":
		if err := m.Up(ctx); err != nil {
			return err
		}
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Database is at version %d\n", v)

	case "down":
		if err := m.Down(ctx); err != nil {
			return err
		}
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Rolled back, database is at version %d\n", v)

	case "status":
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tAPPLIED AT\tMIGRATION")
		for _, s := range statuses {
			applied := "pending"
			if s.Applied {
				applied = s.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Version, applied, s.Path)
		}
		return tw.Flush()

	case "version":
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Hoaxify Migration Tool %s (%s, built %s)\n", Version, GitCommit, BuildTime)
		fmt.Printf("Driver: %s\n", cfg.Database.Driver)
		fmt.Printf("Schema version: %d\n", v)
	}

	return nil
}

func printUsage() {
	fmt.Println(`Hoaxify Migration Tool

Usage:
  hoaxify-migrate [-config path] <command>

Commands:
  up          Run all pending migrations
  down        Rollback the last migration
  status      Show current migration status
  version     Print tool and schema version
  help        Show this help message

Environment Variables:
  HOAXIFY_DATABASE_DRIVER    sqlite or postgres
  HOAXIFY_DATABASE_PATH      SQLite database file

Examples:
  hoaxify-migrate up
  hoaxify-migrate -config configs/config.yaml status`)
}
