package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/banshee-data/activealign/internal/store"
)

// runMigrate handles the migrate subcommand and returns the exit code.
func runMigrate(args []string, dbPath, dir string) int {
	return migrateCommand(os.Stdout, args, dbPath, dir)
}

func migrateCommand(w io.Writer, args []string, dbPath, dir string) int {
	if len(args) < 1 || args[0] == "help" {
		printMigrateHelp(w)
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	db, err := store.OpenRaw(dbPath)
	if err != nil {
		fmt.Fprintf(w, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer db.Close()

	switch action := args[0]; action {
	case "up":
		if err := db.MigrateUp(dir); err != nil {
			fmt.Fprintf(w, "Migration up failed: %v\n", err)
			return 1
		}
		fmt.Fprintln(w, "✓ All migrations applied successfully")

	case "down":
		if err := db.MigrateDown(dir); err != nil {
			fmt.Fprintf(w, "Migration down failed: %v\n", err)
			return 1
		}
		fmt.Fprintln(w, "✓ Rolled back one migration")

	case "status":
		version, dirty, err := db.MigrateVersion(dir)
		if err != nil {
			fmt.Fprintf(w, "Failed to read migration status: %v\n", err)
			return 1
		}
		fmt.Fprintf(w, "Current version: %d\n", version)
		if dirty {
			fmt.Fprintln(w, "⚠ Database is dirty; fix the schema and run 'migrate force <version>'")
		}

	case "force":
		if len(args) < 2 {
			fmt.Fprintln(w, "Usage: aa-scan migrate force <version_number>")
			return 1
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(w, "Invalid version %q: %v\n", args[1], err)
			return 1
		}
		if err := db.MigrateForce(dir, v); err != nil {
			fmt.Fprintf(w, "Force failed: %v\n", err)
			return 1
		}
		fmt.Fprintf(w, "✓ Forced version to %d\n", v)

	default:
		fmt.Fprintf(w, "Unknown migrate action: %s\n\n", action)
		printMigrateHelp(w)
		return 1
	}
	return 0
}

func printMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: aa-scan [-db path] [-migrations dir] migrate <action>

Actions:
  up            Apply all pending migrations
  down          Roll back the most recent migration
  status        Show the current schema version
  force <N>     Set the version without running migrations
  help          Show this help
`)
}
