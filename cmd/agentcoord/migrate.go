package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/BaSui01/agentcoord/config"
	"github.com/BaSui01/agentcoord/internal/migration"
)

// =============================================================================
// Knowledge Store Migration Commands
// =============================================================================

// migrateCommand 子命令实现；positional 是 flag 解析后的剩余参数
type migrateCommand func(ctx context.Context, cli *migration.CLI, m *migration.DefaultMigrator, positional []string) error

var migrateCommands = map[string]migrateCommand{
	"up": func(ctx context.Context, cli *migration.CLI, _ *migration.DefaultMigrator, _ []string) error {
		return cli.RunUp(ctx)
	},
	"down": func(ctx context.Context, cli *migration.CLI, _ *migration.DefaultMigrator, _ []string) error {
		return cli.RunDown(ctx)
	},
	"steps": func(ctx context.Context, cli *migration.CLI, _ *migration.DefaultMigrator, positional []string) error {
		n, err := intArg(positional, "steps")
		if err != nil {
			return err
		}
		return cli.RunSteps(ctx, n)
	},
	"status": func(ctx context.Context, cli *migration.CLI, _ *migration.DefaultMigrator, _ []string) error {
		return cli.RunStatus(ctx)
	},
	"version": func(ctx context.Context, cli *migration.CLI, _ *migration.DefaultMigrator, _ []string) error {
		return cli.RunVersion(ctx)
	},
	"info": func(ctx context.Context, cli *migration.CLI, _ *migration.DefaultMigrator, _ []string) error {
		return cli.RunInfo(ctx)
	},
	"force": func(ctx context.Context, cli *migration.CLI, _ *migration.DefaultMigrator, positional []string) error {
		v, err := intArg(positional, "force")
		if err != nil {
			return err
		}
		return cli.RunForce(ctx, v)
	},
	"reset": func(ctx context.Context, cli *migration.CLI, m *migration.DefaultMigrator, _ []string) error {
		v, _, err := m.Version(ctx)
		if err != nil {
			return err
		}
		if v == 0 {
			fmt.Println("Nothing to roll back.")
			return nil
		}
		return cli.RunSteps(ctx, -int(v))
	},
}

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	sub := args[0]
	if sub == "help" || sub == "-h" || sub == "--help" {
		printMigrateUsage()
		return
	}
	cmd, ok := migrateCommands[sub]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", sub)
		printMigrateUsage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ExitOnError)
	migrator, err := createMigrator(fs, args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}

	err = cmd(context.Background(), migration.NewCLI(migrator), migrator, fs.Args())
	if closeErr := migrator.Close(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Failed to close migrator: %v\n", closeErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", sub, err)
		os.Exit(1)
	}
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Knowledge Store Migration Commands

Usage:
  agentcoord migrate <subcommand> [options] [args]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  steps <n>   Apply n migrations (negative n rolls back)
  status      Show migration status
  version     Show current migration version
  info        Show current version and pending count
  force <v>   Force set migration version (use with caution)
  reset       Rollback all migrations
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  agentcoord migrate up
  agentcoord migrate up --config /etc/agentcoord/config.yaml
  agentcoord migrate steps -1
  agentcoord migrate status
  agentcoord migrate force 1
  agentcoord migrate reset`)
}

// createMigrator creates a migrator from command line flags. --db-type and
// --db-url together bypass the config file.
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dbType != "" && *dbURL != "" {
		return migration.NewMigratorFromURL(*dbType, *dbURL)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}

	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

func intArg(positional []string, sub string) (int, error) {
	if len(positional) < 1 {
		return 0, fmt.Errorf("migrate %s requires a number argument", sub)
	}
	n, err := strconv.Atoi(positional[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", positional[0], err)
	}
	return n, nil
}
