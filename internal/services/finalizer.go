package services

import (
	"context"
	"sort"

	"oceancolor-platform/internal/models"
	"oceancolor-platform/internal/store"
	"oceancolor-platform/pkg/logging"
	"oceancolor-platform/pkg/metrics"
)

// Finalizer merges every checkpoint of a station/product pair into one
// time-sorted final artifact and removes the checkpoints afterwards.
type Finalizer struct {
	store   *store.CheckpointStore
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewFinalizer creates a finalizer over the given checkpoint store.
func NewFinalizer(checkpointStore *store.CheckpointStore, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Finalizer {
	return &Finalizer{
		store:   checkpointStore,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Finalize merges all checkpoints for the pair. With no checkpoints it
// returns an empty path and no error: nothing was produced. Records are
// concatenated, stable-sorted ascending by time, and deduplicated on
// identical timestamps (first occurrence wins). Checkpoints are deleted
// only after the final artifact write succeeds, so a failed write leaves
// the run retryable without re-extraction.
func (f *Finalizer) Finalize(ctx context.Context, station string, product models.ProductType) (string, error) {
	timer := f.metrics.NewTimer(f.metrics.FinalizeDuration)
	defer timer.ObserveDuration()

	batches, err := f.store.ListBatches(station, product)
	if err != nil {
		return "", err
	}
	if len(batches) == 0 {
		f.logger.Warn(ctx, "[FINALIZE_EMPTY] No checkpoint batches to finalize", logging.Fields{
			"station_code": station,
			"product_type": product.String(),
		})
		return "", nil
	}

	f.logger.Info(ctx, "[FINALIZE_MERGE] Merging checkpoints", logging.Fields{
		"station_code":     station,
		"product_type":     product.String(),
		"checkpoint_count": len(batches),
	})

	var records []*models.PixelRecord
	for _, ref := range batches {
		batchRecords, err := f.store.ReadBatch(ctx, ref)
		if err != nil {
			return "", err
		}
		records = append(records, batchRecords...)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.Before(records[j].Time)
	})
	records = dedupByTime(records)

	path, err := f.store.WriteFinal(ctx, station, product, records)
	if err != nil {
		return "", err
	}

	for _, ref := range batches {
		if err := f.store.DeleteBatch(ctx, ref); err != nil {
			// The artifact is already in place; a stale checkpoint only
			// wastes space and is skipped on the next run.
			f.logger.Warn(ctx, "[FINALIZE_CLEANUP] Failed to remove checkpoint", logging.Fields{
				"path": ref.Path,
			})
		}
	}

	f.logger.Info(ctx, "[FINALIZE_COMPLETE] Final artifact ready", logging.Fields{
		"station_code": station,
		"product_type": product.String(),
		"record_count": len(records),
		"artifact":     path,
	})
	return path, nil
}

// dedupByTime drops records sharing a timestamp with an earlier record.
// Input must already be sorted by time.
func dedupByTime(records []*models.PixelRecord) []*models.PixelRecord {
	if len(records) < 2 {
		return records
	}
	out := records[:1]
	for _, r := range records[1:] {
		if !r.Time.Equal(out[len(out)-1].Time) {
			out = append(out, r)
		}
	}
	return out
}
