package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/arenaops/bracket-engine/config"
	"github.com/arenaops/bracket-engine/db"
)

// Usage: migrate [-path dir] up|down|version|force <version>
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	path := flag.String("path", "", "migrations directory (defaults to MIGRATIONS_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	migrationsPath := cfg.MigrationsPath
	if *path != "" {
		migrationsPath = *path
	}

	command := flag.Arg(0)
	if command == "" {
		fmt.Fprintln(os.Stderr, "usage: migrate [-path dir] up|down|version|force <version>")
		os.Exit(2)
	}

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbConn.Close()

	switch command {
	case "up":
		if err := db.MigrateUp(dbConn, migrationsPath); err != nil {
			logger.Error("migration up failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	case "down":
		if err := db.MigrateDown(dbConn, migrationsPath); err != nil {
			logger.Error("migration down failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("rolled back one migration")
	case "version":
		version, dirty, err := db.MigrationVersion(dbConn, migrationsPath)
		if err != nil {
			logger.Error("failed to read version", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("version: %d dirty: %t\n", version, dirty)
	case "force":
		version, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			fmt.Fprintln(os.Stderr, "force requires a numeric version")
			os.Exit(2)
		}
		if err := db.MigrateForce(dbConn, migrationsPath, version); err != nil {
			logger.Error("migration force failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migration version forced", slog.Int("version", version))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		os.Exit(2)
	}
}
