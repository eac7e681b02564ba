package services

import (
	"context"
	"time"

	"oceancolor-platform/internal/catalog"
	"oceancolor-platform/internal/granule"
	"oceancolor-platform/internal/models"
	"oceancolor-platform/internal/store"
	"oceancolor-platform/pkg/logging"
	"oceancolor-platform/pkg/metrics"
)

// ExtractionService accumulates single-pixel records across a station's
// granule list, flushing a checkpoint every batchSize granules, and
// resumes interrupted work by counting existing checkpoints. All state is
// rederived from the filesystem; nothing survives a restart in memory.
type ExtractionService struct {
	locator   *catalog.Locator
	store     *store.CheckpointStore
	finalizer *Finalizer
	batchSize int
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector

	// openSource turns a granule byte stream into a hierarchical array
	// source. Swappable in tests.
	openSource func(stream catalog.Stream) (granule.Source, error)
}

// ProcessResult contains per-run extraction statistics.
type ProcessResult struct {
	ArtifactPath     string
	GranulesTotal    int
	RecordsExtracted int
	GranulesFailed   int
	Duration         time.Duration
}

// NewExtractionService creates an extraction service.
func NewExtractionService(
	locator *catalog.Locator,
	checkpointStore *store.CheckpointStore,
	finalizer *Finalizer,
	batchSize int,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ExtractionService {
	return &ExtractionService{
		locator:   locator,
		store:     checkpointStore,
		finalizer: finalizer,
		batchSize: batchSize,
		logger:    logger,
		metrics:   metricsCollector,
		openSource: func(stream catalog.Stream) (granule.Source, error) {
			return granule.OpenNetCDF(stream)
		},
	}
}

// ResumePoint derives how many granules prior runs have already processed
// from the number of existing checkpoints. The arithmetic is exact only
// when every prior batch was full-sized; an interrupted run whose partial
// batch was never persisted resumes exactly, while any deviation in batch
// sizing yields at-least-once processing on the batch boundary rather
// than exactly-once.
func ResumePoint(batchCount, batchSize int) int {
	return batchCount * batchSize
}

// Process runs extraction for one station/product pair over the resolved
// granule list. It returns immediately when the final artifact already
// exists, resumes from the checkpoint-derived offset otherwise, and
// finalizes when the granule list is exhausted. A granule list no longer
// than the checkpointed offset (the catalog may resolve fewer granules
// than a prior run did) extracts nothing and goes straight to
// finalization. A granule that fails extraction is logged and skipped;
// catalog and persistence failures abort the run with prior checkpoints
// intact.
func (s *ExtractionService) Process(ctx context.Context, station models.Station, product models.ProductType, granules []catalog.Granule) (*ProcessResult, error) {
	start := time.Now()
	log := s.logger.WithFields(logging.Fields{
		"station_code": station.Code,
		"product_type": product.String(),
	})

	result := &ProcessResult{GranulesTotal: len(granules)}
	defer func() { result.Duration = time.Since(start) }()

	if s.store.FinalExists(station.Code, product) {
		result.ArtifactPath = s.store.FinalPath(station.Code, product)
		log.Info(ctx, "[PROCESS_SKIP] Final artifact exists, skipping", logging.Fields{
			"artifact_path": result.ArtifactPath,
		})
		return result, nil
	}

	batches, err := s.store.ListBatches(station.Code, product)
	if err != nil {
		return result, err
	}

	total := len(granules)
	processed := ResumePoint(len(batches), s.batchSize)

	if processed >= total && len(batches) > 0 {
		log.Info(ctx, "[PROCESS_FINALIZE] No unprocessed granules, finalizing checkpoints", logging.Fields{
			"checkpoint_count": len(batches),
			"total_granules":   total,
		})
		result.ArtifactPath, err = s.finalizer.Finalize(ctx, station.Code, product)
		return result, err
	}

	log.Info(ctx, "[PROCESS_RESUME] Resuming extraction", logging.Fields{
		"processed_count": processed,
		"total_granules":  total,
		"batch_size":      s.batchSize,
	})

	remaining := granules[processed:]

	streams, err := s.locator.Open(ctx, product, remaining)
	if err != nil {
		return result, err
	}

	varName := product.VarName()
	current := make([]*models.PixelRecord, 0, s.batchSize)

	for i, stream := range streams {
		g := remaining[i]

		record, err := s.extractOne(stream, g, station, varName)
		if err != nil {
			result.GranulesFailed++
			s.metrics.RecordGranuleFailure("extraction_error")
			log.Error(ctx, "[GRANULE_FAILED] Granule extraction failed, skipping", logging.Fields{
				"granule":      g.Name,
				"global_index": processed + i,
			}, err)
		} else {
			current = append(current, record)
			result.RecordsExtracted++
			s.metrics.GranulesProcessedTotal.Inc()
		}

		globalIdx := processed + i + 1
		if globalIdx%s.batchSize == 0 || globalIdx == total {
			if len(current) == 0 {
				log.Warn(ctx, "[BATCH_EMPTY] Every granule in batch failed, no checkpoint written", logging.Fields{
					"global_index": globalIdx,
				})
				continue
			}
			batchIndex := (globalIdx - 1) / s.batchSize
			if err := s.store.WriteBatch(ctx, station.Code, product, batchIndex, current); err != nil {
				closeStreams(streams[i+1:])
				return result, err
			}
			log.Info(ctx, "[BATCH_FLUSHED] Progress", logging.Fields{
				"global_index":   globalIdx,
				"total_granules": total,
				"batch_index":    batchIndex,
			})
			current = make([]*models.PixelRecord, 0, s.batchSize)
		}
	}

	result.ArtifactPath, err = s.finalizer.Finalize(ctx, station.Code, product)
	return result, err
}

// extractOne opens a single granule stream as a hierarchical source and
// extracts the nearest-pixel record. The stream is released before
// returning.
func (s *ExtractionService) extractOne(stream catalog.Stream, g catalog.Granule, station models.Station, varName string) (*models.PixelRecord, error) {
	timer := s.metrics.NewTimer(s.metrics.ExtractionDuration)
	defer timer.ObserveDuration()

	src, err := s.openSource(stream)
	if err != nil {
		stream.Close()
		return nil, &models.ExtractionError{
			Granule: g.Name,
			Reason:  "unreadable granule",
			Err:     err,
		}
	}
	defer src.Close()

	return granule.Extract(src, g.Name, station.Latitude, station.Longitude, varName)
}

func closeStreams(streams []catalog.Stream) {
	for _, s := range streams {
		s.Close()
	}
}
