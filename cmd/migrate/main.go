package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/digipath/maturity-diagnosis/internal/config"
	"github.com/digipath/maturity-diagnosis/internal/database"
)

func main() {
	defaults := database.DefaultConfig()
	var (
		dataDir  = flag.String("data-dir", "", "Directory holding the database file")
		fileName = flag.String("file", "", "Database file name")
		up       = flag.Bool("up", false, "Run all up migrations")
		down     = flag.Bool("down", false, "Run all down migrations")
		steps    = flag.Int("steps", 0, "Number of migrations (positive=up, negative=down)")
		version  = flag.Bool("version", false, "Print current migration version")
		force    = flag.Int("force", -1, "Force set version (use with caution)")
	)
	flag.Parse()

	forceSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "force" {
			forceSet = true
		}
	})

	cfg := defaults
	cfg.DataDir = firstNonEmpty(*dataDir, os.Getenv(config.EnvDatabaseDataDir), defaults.DataDir)
	cfg.FileName = firstNonEmpty(*fileName, os.Getenv(config.EnvDatabaseFileName), defaults.FileName)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	source, err := iofs.New(database.Migrations, "migrations")
	if err != nil {
		log.Fatalf("failed to create migration source: %v", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite3://"+cfg.Path()+"?_foreign_keys=on")
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	switch {
	case *version:
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return
		}
		if err != nil {
			log.Fatalf("failed to get version: %v", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", v, dirty)
	case forceSet:
		if err := m.Force(*force); err != nil {
			log.Fatalf("failed to force version: %v", err)
		}
		fmt.Printf("forced to version %d\n", *force)
	case *up:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("failed to run up migrations: %v", err)
		}
		fmt.Println("migrations applied successfully")
	case *down:
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("failed to run down migrations: %v", err)
		}
		fmt.Println("migrations reverted successfully")
	case *steps != 0:
		if err := m.Steps(*steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("failed to run migrations: %v", err)
		}
		fmt.Printf("applied %d migration steps\n", *steps)
	default:
		fmt.Println("usage: migrate [-data-dir DIR] [-file NAME] [-up|-down|-steps N|-version|-force N]")
		flag.PrintDefaults()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
