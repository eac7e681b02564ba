// Package store persists extraction state on the filesystem: periodic
// checkpoint batches and the merged final artifact for each
// station/product pair. The directory listing is the only durable state;
// every resumption decision is rederived from it.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"oceancolor-platform/internal/models"
	"oceancolor-platform/pkg/logging"
	"oceancolor-platform/pkg/metrics"
)

// BatchRef identifies one persisted checkpoint batch.
type BatchRef struct {
	StationCode string
	ProductType models.ProductType
	Index       int
	Path        string
}

// CheckpointStore manages checkpoint and final artifact files in one
// output directory.
type CheckpointStore struct {
	dir     string
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// New creates a checkpoint store rooted at dir, creating the directory if
// absent.
func New(dir string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &models.PersistenceError{Op: "create_dir", Path: dir, Err: err}
	}
	return &CheckpointStore{
		dir:     dir,
		logger:  logger,
		metrics: metricsCollector,
	}, nil
}

// Dir returns the output directory.
func (s *CheckpointStore) Dir() string { return s.dir }

// FinalPath returns the final artifact path for a station/product pair.
func (s *CheckpointStore) FinalPath(station string, product models.ProductType) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s_final.nc", station, product))
}

// FinalExists reports whether the final artifact is present. Its presence
// is the global completion marker for the pair.
func (s *CheckpointStore) FinalExists(station string, product models.ProductType) bool {
	_, err := os.Stat(s.FinalPath(station, product))
	return err == nil
}

// BatchPath returns the checkpoint path for a batch index. The index is
// the 0-based global position of the batch's last granule divided by the
// batch size, zero-padded so a lexical listing sorts numerically.
func (s *CheckpointStore) BatchPath(station string, product models.ProductType, index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("checkpoint_%s_%s_b%04d.nc", station, product, index))
}

// ListBatches enumerates existing checkpoints for the pair, sorted by
// batch index.
func (s *CheckpointStore) ListBatches(station string, product models.ProductType) ([]BatchRef, error) {
	pattern := filepath.Join(s.dir, fmt.Sprintf("checkpoint_%s_%s_b*.nc", station, product))
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, &models.PersistenceError{Op: "list_batches", Path: pattern, Err: err}
	}

	refs := make([]BatchRef, 0, len(paths))
	prefix := fmt.Sprintf("checkpoint_%s_%s_b", station, product)
	for _, p := range paths {
		name := filepath.Base(p)
		var index int
		if _, err := fmt.Sscanf(name[len(prefix):], "%04d.nc", &index); err != nil {
			continue
		}
		refs = append(refs, BatchRef{
			StationCode: station,
			ProductType: product,
			Index:       index,
			Path:        p,
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Index < refs[j].Index })
	return refs, nil
}

// WriteBatch persists one checkpoint batch. The batch is immutable once
// written; only the finalizer consumes and deletes it.
func (s *CheckpointStore) WriteBatch(ctx context.Context, station string, product models.ProductType, index int, records []*models.PixelRecord) error {
	path := s.BatchPath(station, product, index)
	if len(records) == 0 {
		return &models.PersistenceError{Op: "write_batch", Path: path, Err: errNoRecords}
	}

	if err := writeRecords(path, product.VarName(), records, nil); err != nil {
		s.metrics.RecordPersistenceError("write_batch")
		return &models.PersistenceError{Op: "write_batch", Path: path, Err: err}
	}

	s.metrics.CheckpointWritesTotal.Inc()
	s.metrics.CheckpointBatchSize.Observe(float64(len(records)))

	s.logger.Info(ctx, "[CHECKPOINT_SAVED] Checkpoint batch written", logging.Fields{
		"station_code": station,
		"product_type": product.String(),
		"batch_index":  index,
		"record_count": len(records),
		"path":         filepath.Base(path),
	})
	return nil
}

// ReadBatch loads all records of one checkpoint batch.
func (s *CheckpointStore) ReadBatch(ctx context.Context, ref BatchRef) ([]*models.PixelRecord, error) {
	records, err := readRecords(ref.Path, ref.ProductType.VarName())
	if err != nil {
		s.metrics.RecordPersistenceError("read_batch")
		return nil, &models.PersistenceError{Op: "read_batch", Path: ref.Path, Err: err}
	}
	return records, nil
}

// DeleteBatch removes a checkpoint file.
func (s *CheckpointStore) DeleteBatch(ctx context.Context, ref BatchRef) error {
	if err := os.Remove(ref.Path); err != nil {
		s.metrics.RecordPersistenceError("delete_batch")
		return &models.PersistenceError{Op: "delete_batch", Path: ref.Path, Err: err}
	}
	s.logger.Debug(ctx, "[CHECKPOINT_DELETED] Checkpoint removed", logging.Fields{
		"path": filepath.Base(ref.Path),
	})
	return nil
}

// WriteFinal persists the merged final artifact and returns its path.
func (s *CheckpointStore) WriteFinal(ctx context.Context, station string, product models.ProductType, records []*models.PixelRecord) (string, error) {
	path := s.FinalPath(station, product)
	attrs := map[string]string{
		"station_code": station,
		"product_type": product.String(),
	}
	if err := writeRecords(path, product.VarName(), records, attrs); err != nil {
		s.metrics.RecordPersistenceError("write_final")
		return "", &models.PersistenceError{Op: "write_final", Path: path, Err: err}
	}

	s.metrics.FinalArtifactsTotal.Inc()
	s.logger.Info(ctx, "[FINAL_SAVED] Final artifact written", logging.Fields{
		"station_code": station,
		"product_type": product.String(),
		"record_count": len(records),
		"path":         filepath.Base(path),
	})
	return path, nil
}

// ReadFinal loads all records of the final artifact.
func (s *CheckpointStore) ReadFinal(ctx context.Context, station string, product models.ProductType) ([]*models.PixelRecord, error) {
	path := s.FinalPath(station, product)
	if _, err := os.Stat(path); err != nil {
		return nil, &models.NotFoundError{
			Resource: "final_artifact",
			ID:       fmt.Sprintf("%s/%s", station, product),
		}
	}
	records, err := readRecords(path, product.VarName())
	if err != nil {
		s.metrics.RecordPersistenceError("read_final")
		return nil, &models.PersistenceError{Op: "read_final", Path: path, Err: err}
	}
	return records, nil
}

// ListFinals enumerates every final artifact in the output directory.
func (s *CheckpointStore) ListFinals() ([]ArtifactRef, error) {
	pattern := filepath.Join(s.dir, "*_final.nc")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, &models.PersistenceError{Op: "list_finals", Path: pattern, Err: err}
	}

	refs := make([]ArtifactRef, 0, len(paths))
	for _, p := range paths {
		ref, ok := parseFinalName(filepath.Base(p))
		if !ok {
			continue
		}
		ref.Path = p
		if info, err := os.Stat(p); err == nil {
			ref.SizeBytes = info.Size()
			ref.ModifiedAt = info.ModTime().UTC()
		}
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].StationCode != refs[j].StationCode {
			return refs[i].StationCode < refs[j].StationCode
		}
		return refs[i].ProductType < refs[j].ProductType
	})
	return refs, nil
}
