package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/runlens/runlens/internal/adapter/postgres"
	"github.com/runlens/runlens/internal/config"
)

// runAdmin dispatches admin subcommands (migrate, rollback, version).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "rollback":
		return runAdminRollback(args[1:])
	case "version":
		return runAdminVersion(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: runlens admin <command> [options]

Commands:
  migrate    Apply all pending database migrations
  rollback   Roll back the last N migrations
  version    Print the current migration version
  help       Show this help message

Examples:
  runlens admin migrate
  runlens admin rollback --steps 1
  runlens admin version
`)
}

func adminDSN() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Driver != "postgres" {
		return "", fmt.Errorf("migrations require the postgres driver, got %q", cfg.Storage.Driver)
	}
	return cfg.Postgres.DSN, nil
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	dsn, err := adminDSN()
	if err != nil {
		return err
	}

	if err := postgres.RunMigrations(context.Background(), dsn); err != nil {
		return err
	}
	fmt.Println("migrations applied")
	return nil
}

func runAdminRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("steps must be at least 1")
	}

	dsn, err := adminDSN()
	if err != nil {
		return err
	}

	if err := postgres.RollbackMigrations(context.Background(), dsn, *steps); err != nil {
		return err
	}
	fmt.Printf("rolled back %d migration(s)\n", *steps)
	return nil
}

func runAdminVersion(args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	dsn, err := adminDSN()
	if err != nil {
		return err
	}

	version, err := postgres.MigrationVersion(context.Background(), dsn)
	if err != nil {
		return err
	}
	fmt.Printf("migration version: %d\n", version)
	return nil
}
