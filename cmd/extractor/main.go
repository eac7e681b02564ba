package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"oceancolor-platform/internal/catalog"
	"oceancolor-platform/internal/config"
	"oceancolor-platform/internal/models"
	"oceancolor-platform/internal/repository"
	"oceancolor-platform/internal/services"
	"oceancolor-platform/internal/store"
	"oceancolor-platform/pkg/database"
	"oceancolor-platform/pkg/logging"
	"oceancolor-platform/pkg/metrics"
)

func main() {
	// Parse command-line flags
	outputDir := flag.String("output-dir", "", "Directory for checkpoints and final artifacts (overrides EXTRACTOR_OUTPUT_DIR)")
	granuleDir := flag.String("granule-dir", "", "Directory containing staged granule files (overrides EXTRACTOR_GRANULE_DIR)")
	batchSize := flag.Int("batch-size", 0, "Granules per checkpoint batch (overrides EXTRACTOR_BATCH_SIZE)")
	stationCode := flag.String("station", "", "Process a single station code instead of the full registry")
	products := flag.String("products", "Rrs,Rrc", "Comma-separated product types to extract")
	startDate := flag.String("start", "2024-04-11", "Temporal range start (YYYY-MM-DD)")
	endDate := flag.String("end", time.Now().UTC().Format("2006-01-02"), "Temporal range end (YYYY-MM-DD)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Extractor.OutputDir = *outputDir
	}
	if *granuleDir != "" {
		cfg.Extractor.GranuleDir = *granuleDir
	}
	if *batchSize > 0 {
		cfg.Extractor.BatchSize = *batchSize
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel := logging.InfoLevel
	if cfg.Logging.Level == "debug" {
		logLevel = logging.DebugLevel
	}
	logger := logging.NewStructuredLogger("oceancolor-extractor", "1.0.0", logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[EXTRACTOR_START] Starting spectra extraction", logging.Fields{
		"version":     "1.0.0",
		"output_dir":  cfg.Extractor.OutputDir,
		"granule_dir": cfg.Extractor.GranuleDir,
		"batch_size":  cfg.Extractor.BatchSize,
	})

	temporal, err := parseTemporalRange(*startDate, *endDate)
	if err != nil {
		logger.Fatal(ctx, "[EXTRACTOR_ERROR] Invalid temporal range", logging.Fields{}, err)
	}

	productTypes, err := parseProducts(*products)
	if err != nil {
		logger.Fatal(ctx, "[EXTRACTOR_ERROR] Invalid product list", logging.Fields{}, err)
	}

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("oceancolor_extractor")

	// Initialize database
	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[EXTRACTOR_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	stationRepo := repository.NewStationRepository(db, logger, metricsCollector)

	// Resolve stations to process
	stations, err := resolveStations(ctx, stationRepo, *stationCode)
	if err != nil {
		logger.Fatal(ctx, "[EXTRACTOR_ERROR] Failed to resolve stations", logging.Fields{}, err)
	}
	if len(stations) == 0 {
		logger.Fatal(ctx, "[EXTRACTOR_ERROR] No stations registered", logging.Fields{}, fmt.Errorf("station registry is empty"))
	}

	// Initialize pipeline
	checkpointStore, err := store.New(cfg.Extractor.OutputDir, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[EXTRACTOR_ERROR] Failed to initialize output directory", logging.Fields{}, err)
	}

	locator := catalog.NewLocator(catalog.NewDirectoryCatalog(cfg.Extractor.GranuleDir), logger, metricsCollector)
	finalizer := services.NewFinalizer(checkpointStore, logger, metricsCollector)
	extraction := services.NewExtractionService(locator, checkpointStore, finalizer, cfg.Extractor.BatchSize, logger, metricsCollector)

	exitCode := 0
	for _, station := range stations {
		for _, product := range productTypes {
			if err := runStation(ctx, extraction, locator, stationRepo, station, product, temporal, logger); err != nil {
				exitCode = 1
			}
		}
	}

	logger.Info(ctx, "[EXTRACTOR_COMPLETE] Extraction finished", logging.Fields{
		"stations": len(stations),
		"products": len(productTypes),
	})
	os.Exit(exitCode)
}

// runStation processes one station/product pair and records the run in
// the ledger. A failure is fatal only to this pair.
func runStation(
	ctx context.Context,
	extraction *services.ExtractionService,
	locator *catalog.Locator,
	repo repository.StationRepository,
	station *models.Station,
	product models.ProductType,
	temporal models.TimeRange,
	logger *logging.StructuredLogger,
) error {
	granules, err := locator.Find(ctx, product, station.Latitude, station.Longitude, temporal)
	if err != nil {
		logger.Error(ctx, "[STATION_FAILED] Granule search failed", logging.Fields{
			"station_code": station.Code,
			"product_type": product.String(),
		}, err)
		return err
	}

	result, err := extraction.Process(ctx, *station, product, granules)
	if err != nil {
		logger.Error(ctx, "[STATION_FAILED] Extraction run aborted", logging.Fields{
			"station_code": station.Code,
			"product_type": product.String(),
		}, err)
	}

	if result != nil {
		run := &models.ExtractionRun{
			StationCode:      station.Code,
			ProductType:      product.String(),
			GranulesTotal:    result.GranulesTotal,
			RecordsExtracted: result.RecordsExtracted,
			GranulesFailed:   result.GranulesFailed,
			ArtifactPath:     result.ArtifactPath,
			DurationSeconds:  result.Duration.Seconds(),
		}
		if ledgerErr := repo.CreateRun(ctx, run); ledgerErr != nil {
			logger.Warn(ctx, "[RUN_LEDGER_WARNING] Failed to record extraction run", logging.Fields{
				"station_code": station.Code,
				"product_type": product.String(),
			})
		}
	}
	return err
}

func resolveStations(ctx context.Context, repo repository.StationRepository, code string) ([]*models.Station, error) {
	if code != "" {
		station, err := repo.GetStation(ctx, code)
		if err != nil {
			return nil, err
		}
		return []*models.Station{station}, nil
	}
	return repo.ListStations(ctx, 1000, 0)
}

func parseProducts(s string) ([]models.ProductType, error) {
	var products []models.ProductType
	for _, part := range strings.Split(s, ",") {
		product, err := models.ParseProductType(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func parseTemporalRange(start, end string) (models.TimeRange, error) {
	startTime, err := time.Parse("2006-01-02", start)
	if err != nil {
		return models.TimeRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	endTime, err := time.Parse("2006-01-02", end)
	if err != nil {
		return models.TimeRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if endTime.Before(startTime) {
		return models.TimeRange{}, fmt.Errorf("end date %s precedes start date %s", end, start)
	}
	return models.TimeRange{Start: startTime.UTC(), End: endTime.UTC()}, nil
}
