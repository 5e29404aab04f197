package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"airquality-platform/internal/config"
	"airquality-platform/pkg/database"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	force := flag.Int("force", -1, "Force the schema version and clear the dirty flag, then exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("airquality-migrate", "1.0.0", logging.WarnLevel)
	metricsCollector := metrics.NewCollector("airquality_migrate", nil)

	db, err := database.Open(cfg.DatabaseOptions(), logger, metricsCollector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.HealthCheck(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to ping database: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Connected to %s database successfully\n", db.Driver())

	if *force >= 0 {
		if err := db.MigrateForce(*force); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to force version: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Schema version forced to %d\n", *force)
		return
	}

	switch *direction {
	case "up":
		err = db.MigrateUp()
	case "down":
		err = db.MigrateDown()
	default:
		fmt.Fprintf(os.Stderr, "Unknown direction %q, expected up or down\n", *direction)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute migration: %v\n", err)
		os.Exit(1)
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read schema version: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Migration %s completed successfully (version %d, dirty %v)\n", *direction, version, dirty)
}
