package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"oceancolor-platform/internal/models"
	"oceancolor-platform/pkg/database"
	"oceancolor-platform/pkg/logging"
	"oceancolor-platform/pkg/metrics"
)

// StationRepository provides data access for the station registry and the
// extraction run ledger.
type StationRepository interface {
	// Station operations
	CreateStation(ctx context.Context, station *models.Station) error
	GetStation(ctx context.Context, code string) (*models.Station, error)
	ListStations(ctx context.Context, limit, offset int) ([]*models.Station, error)

	// Run ledger operations
	CreateRun(ctx context.Context, run *models.ExtractionRun) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.ExtractionRun, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// RunFilter defines filters for querying extraction runs
type RunFilter struct {
	StationCode *string
	ProductType *string
	Limit       int
	Offset      int
}

// stationRepository implements StationRepository
type stationRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStationRepository creates a new station repository
func NewStationRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) StationRepository {
	return &stationRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// CreateStation registers a station, ignoring duplicates
func (r *stationRepository) CreateStation(ctx context.Context, station *models.Station) error {
	query := `
		INSERT INTO stations (station_code, name, latitude, longitude, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (station_code) DO UPDATE SET
			name = EXCLUDED.name,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, "upsert_station", query,
		station.Code,
		station.Name,
		station.Latitude,
		station.Longitude,
		station.CreatedAt,
		station.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create station: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_STATION] Station registered", logging.Fields{
		"station_code": station.Code,
		"lat":          station.Latitude,
		"lon":          station.Longitude,
	})

	return nil
}

// GetStation retrieves a station by code
func (r *stationRepository) GetStation(ctx context.Context, code string) (*models.Station, error) {
	query := `
		SELECT station_code, name, latitude, longitude, created_at, updated_at
		FROM stations
		WHERE station_code = $1
	`

	var station models.Station
	err := r.db.GetContext(ctx, "get_station", &station, query, code)

	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{
			Resource: "station",
			ID:       code,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get station: %w", err)
	}

	return &station, nil
}

// ListStations retrieves registered stations with pagination
func (r *stationRepository) ListStations(ctx context.Context, limit, offset int) ([]*models.Station, error) {
	query := `
		SELECT station_code, name, latitude, longitude, created_at, updated_at
		FROM stations
		ORDER BY station_code
		LIMIT $1 OFFSET $2
	`

	stations := make([]*models.Station, 0)
	if err := r.db.SelectContext(ctx, "list_stations", &stations, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}

	return stations, nil
}

// CreateRun records one extraction run in the ledger
func (r *stationRepository) CreateRun(ctx context.Context, run *models.ExtractionRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO extraction_runs
			(station_code, product_type, granules_total, records_extracted,
			 granules_failed, artifact_path, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	rows, err := r.db.QueryContext(ctx, "insert_run", query,
		run.StationCode,
		run.ProductType,
		run.GranulesTotal,
		run.RecordsExtracted,
		run.GranulesFailed,
		run.ArtifactPath,
		run.DurationSeconds,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record extraction run: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&run.ID); err != nil {
			return fmt.Errorf("failed to read run id: %w", err)
		}
	}

	return nil
}

// ListRuns retrieves extraction runs matching the filter, newest first
func (r *stationRepository) ListRuns(ctx context.Context, filter RunFilter) ([]*models.ExtractionRun, error) {
	query := `
		SELECT id, station_code, product_type, granules_total, records_extracted,
		       granules_failed, artifact_path, duration_seconds, created_at
		FROM extraction_runs
		WHERE ($1::text IS NULL OR station_code = $1)
		  AND ($2::text IS NULL OR product_type = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	runs := make([]*models.ExtractionRun, 0)
	if err := r.db.SelectContext(ctx, "list_runs", &runs, query,
		filter.StationCode, filter.ProductType, limit, filter.Offset); err != nil {
		return nil, fmt.Errorf("failed to list extraction runs: %w", err)
	}

	return runs, nil
}

// HealthCheck verifies database connectivity
func (r *stationRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
