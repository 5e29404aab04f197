package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"airquality-platform/internal/config"
	"airquality-platform/internal/models"
	"airquality-platform/internal/repository"
	"airquality-platform/internal/services"
	"airquality-platform/pkg/database"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	dryRun := flag.Bool("dry-run", false, "Compute and report segments without replacing stored output")
	workers := flag.Int("workers", cfg.Pipeline.Workers, "Number of locations segmented concurrently")
	nowFlag := flag.String("now", "", "End of the hourly spine (RFC3339, default: current time)")
	flag.Parse()

	cfg.Pipeline.Workers = *workers
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	now := time.Now().UTC()
	if *nowFlag != "" {
		if now, err = models.ParseTimestamp(*nowFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -now: %v\n", err)
			os.Exit(1)
		}
	}

	logLevel, _ := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.NewStructuredLogger("airquality-segmenter", "1.0.0", logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsCollector := metrics.NewCollector("airquality_segmenter", nil)

	db, err := database.Open(cfg.DatabaseOptions(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[SEGMENTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	repo := repository.NewAirQualityRepository(db, logger, metricsCollector)
	pipeline := services.NewSegmentationService(repo, cfg.SegmentationParams(), logger, metricsCollector)

	report, err := pipeline.Run(ctx, now, services.RunOptions{DryRun: *dryRun})
	if err != nil {
		logger.Fatal(ctx, "[SEGMENTER_ERROR] Segmentation failed", logging.Fields{}, err)
	}

	run := report.Run
	fmt.Println(strings.Repeat("=", 80))
	if report.DryRun {
		fmt.Println("SEGMENTATION COMPLETE (DRY RUN, NOTHING STORED)")
	} else {
		fmt.Println("SEGMENTATION COMPLETE")
	}
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Run ID:              %s\n", run.RunID)
	fmt.Printf("Analysis Start:      %s\n", run.AnalysisStart.Format(time.RFC3339))
	fmt.Printf("Measurements Read:   %d\n", run.MeasurementsRead)
	fmt.Printf("Locations:           %d (%d segmented)\n", run.LocationsTotal, run.LocationsSegmented)
	fmt.Printf("Grid Rows:           %d\n", run.GridRows)
	fmt.Printf("Retained Rows:       %d\n", run.RetainedRows)
	fmt.Printf("Segments:            %d (gold %d, silver %d, bronze %d)\n",
		run.SegmentsTotal, run.GoldSegments, run.SilverSegments, run.BronzeSegments)
	if run.MeanDensity != nil {
		fmt.Printf("Perfect Density:     %.3f mean, %.3f std\n", *run.MeanDensity, *run.StdDevDensity)
	}
	if run.MeanTotalHours != nil {
		fmt.Printf("Mean Segment Hours:  %.1f\n", *run.MeanTotalHours)
	}
	fmt.Printf("Duration:            %v\n", run.FinishedAt.Sub(run.StartedAt))
}
