package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"airquality-platform/internal/config"
	"airquality-platform/internal/repository"
	"airquality-platform/internal/services"
	"airquality-platform/pkg/database"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

func main() {
	// Load configuration first so flags default to it
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	dataDir := flag.String("data-dir", cfg.Ingestion.DataDir, "Export directory (locations.csv, sensors.csv, measurements/, weather/)")
	batchSize := flag.Int("batch-size", cfg.Ingestion.BatchSize, "Number of records to write per batch")
	migrateFirst := flag.Bool("migrate", false, "Apply pending schema migrations before ingesting")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel, _ := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.NewStructuredLogger("airquality-ingester", "1.0.0", logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[INGESTER_START] Starting export ingestion", logging.Fields{
		"version":    "1.0.0",
		"data_dir":   *dataDir,
		"batch_size": *batchSize,
		"db_driver":  cfg.Database.Driver,
	})

	metricsCollector := metrics.NewCollector("airquality_ingester", nil)

	db, err := database.Open(cfg.DatabaseOptions(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	if *migrateFirst {
		if err := db.MigrateUp(); err != nil {
			logger.Fatal(ctx, "[INGESTER_ERROR] Migration failed", logging.Fields{}, err)
		}
	}

	repo := repository.NewAirQualityRepository(db, logger, metricsCollector)
	ingestionService := services.NewIngestionService(repo, logger, metricsCollector)

	result, err := ingestionService.IngestDirectory(ctx, *dataDir, *batchSize)
	if err != nil {
		logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{
			"error": err.Error(),
		}, err)
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total Files:          %d\n", result.TotalFiles)
	fmt.Printf("Total Records:        %d\n", result.TotalRecords)
	fmt.Printf("Successful Records:   %d\n", result.SuccessfulRecords)
	fmt.Printf("Failed Records:       %d\n", result.FailedRecords)
	fmt.Printf("Measurements Applied: %d\n", result.MeasurementsApplied)
	fmt.Printf("Duration:             %v\n", result.Duration)

	fmt.Println()
	for _, f := range result.Files {
		fmt.Printf("  %-13s %-50s %7d ok %5d failed\n", f.Dataset, f.Path, f.SuccessfulRecords, f.FailedRecords)
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed successfully", logging.Fields{
		"total_records":      result.TotalRecords,
		"successful_records": result.SuccessfulRecords,
		"failed_records":     result.FailedRecords,
		"duration_seconds":   result.Duration.Seconds(),
	})
}
