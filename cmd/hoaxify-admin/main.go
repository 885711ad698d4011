// Package main is the entry point for the Hoaxify admin CLI.
// It inspects and activates user accounts without going through HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/prn-tf/hoaxify/internal/app"
	"github.com/prn-tf/hoaxify/internal/config"
	"github.com/prn-tf/hoaxify/internal/logging"
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

	switch flag.Arg(0) {
	case "version":
		fmt.Printf("Hoaxify Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "user":
		if err := runUser(*configPath, flag.Args()[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", flag.Arg(0))
		printUsage()
		os.Exit(1)
	}
}

func runUser(configPath string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("missing user subcommand")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args[0] {
	case "list":
		page, size := 0, 0
		if len(args) > 1 {
			page, _ = strconv.Atoi(args[1])
		}
		if len(args) > 2 {
			size, _ = strconv.Atoi(args[2])
		}
		result, err := a.Users.ListUsers(ctx, page, size)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: user get <id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[1])
		}
		view, err := a.Users.GetUser(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(view)

	case "activate":
		if len(args) < 2 {
			return fmt.Errorf("usage: user activate <token>")
		}
		if err := a.Users.Activate(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println("Account activated")
		return nil

	default:
		return fmt.Errorf("unknown user subcommand %q", args[0])
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Println(`Hoaxify Admin CLI

Usage:
  hoaxify-admin [-config path] <command> [arguments]

Commands:
  user list [page] [size]   List active users
  user get <id>             Show one active user
  user activate <token>     Redeem an activation token
  version                   Print version information
  help                      Show this help message

Examples:
  hoaxify-admin user list 0 10
  hoaxify-admin user activate 3f2a9c0d1b7e4a56`)
}
