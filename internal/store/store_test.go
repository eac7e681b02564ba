package store

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"oceancolor-platform/internal/models"
	"oceancolor-platform/pkg/logging"
	"oceancolor-platform/pkg/metrics"
)

var (
	testCollectorOnce sync.Once
	testCollector     *metrics.Collector
)

// sharedCollector returns a process-wide collector; promauto registers
// metrics globally, so each test binary may construct it only once.
func sharedCollector() *metrics.Collector {
	testCollectorOnce.Do(func() {
		testCollector = metrics.NewCollector("store_test")
	})
	return testCollector
}

func quietLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("store-test", "test", logging.FatalLevel)
	logger.SetOutput(io.Discard)
	return logger
}

func newTestStore(t *testing.T) *CheckpointStore {
	t.Helper()
	s, err := New(t.TempDir(), quietLogger(), sharedCollector())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func testRecords(n int, startTime time.Time) []*models.PixelRecord {
	wavelength := []float64{443, 555, 670}
	records := make([]*models.PixelRecord, n)
	for i := 0; i < n; i++ {
		records[i] = &models.PixelRecord{
			Wavelength:   wavelength,
			Spectrum:     []float64{0.001 * float64(i+1), 0.002 * float64(i+1), 0.003 * float64(i+1)},
			Time:         startTime.Add(time.Duration(i) * 24 * time.Hour),
			Latitude:     45.31 + float64(i)*0.001,
			Longitude:    12.51,
			QualityFlags: int64(i),
		}
	}
	return records
}

func TestWriteReadBatchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 4, 11, 13, 45, 30, 500_000_000, time.UTC)

	written := testRecords(3, start)
	if err := s.WriteBatch(ctx, "VENICE", models.ProductRrs, 0, written); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	refs, err := s.ListBatches("VENICE", models.ProductRrs)
	if err != nil {
		t.Fatalf("ListBatches() error = %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("ListBatches() returned %d refs, want 1", len(refs))
	}

	got, err := s.ReadBatch(ctx, refs[0])
	if err != nil {
		t.Fatalf("ReadBatch() error = %v", err)
	}
	if len(got) != len(written) {
		t.Fatalf("ReadBatch() returned %d records, want %d", len(got), len(written))
	}

	for i, r := range got {
		w := written[i]
		if !r.Time.Equal(w.Time) {
			t.Errorf("record %d time = %v, want %v", i, r.Time, w.Time)
		}
		if r.Latitude != w.Latitude || r.Longitude != w.Longitude {
			t.Errorf("record %d position = (%v, %v), want (%v, %v)",
				i, r.Latitude, r.Longitude, w.Latitude, w.Longitude)
		}
		if r.QualityFlags != w.QualityFlags {
			t.Errorf("record %d flags = %d, want %d", i, r.QualityFlags, w.QualityFlags)
		}
		for b := range w.Spectrum {
			if r.Spectrum[b] != w.Spectrum[b] {
				t.Errorf("record %d spectrum[%d] = %v, want %v", i, b, r.Spectrum[b], w.Spectrum[b])
			}
			if r.Wavelength[b] != w.Wavelength[b] {
				t.Errorf("record %d wavelength[%d] = %v, want %v", i, b, r.Wavelength[b], w.Wavelength[b])
			}
		}
	}
}

func TestWriteBatch_RejectsEmpty(t *testing.T) {
	s := newTestStore(t)

	err := s.WriteBatch(context.Background(), "VENICE", models.ProductRrs, 0, nil)
	if err == nil {
		t.Fatal("WriteBatch() should reject an empty batch")
	}
	var persistenceErr *models.PersistenceError
	if !errors.As(err, &persistenceErr) {
		t.Errorf("error type = %T, want *models.PersistenceError", err)
	}
}

func TestWriteBatch_RejectsRaggedSpectra(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2024, 4, 11, 0, 0, 0, 0, time.UTC)

	records := testRecords(2, start)
	records[1].Spectrum = records[1].Spectrum[:2]

	if err := s.WriteBatch(context.Background(), "VENICE", models.ProductRrs, 0, records); err == nil {
		t.Fatal("WriteBatch() should reject records with mismatched spectral lengths")
	}
}

func TestListBatches_SortsByIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 4, 11, 0, 0, 0, 0, time.UTC)

	for _, index := range []int{10, 0, 2} {
		if err := s.WriteBatch(ctx, "VENICE", models.ProductRrs, index, testRecords(1, start)); err != nil {
			t.Fatalf("WriteBatch(index=%d) error = %v", index, err)
		}
	}
	// Another pair's checkpoints must not leak into the listing.
	if err := s.WriteBatch(ctx, "GLORIA", models.ProductRrs, 0, testRecords(1, start)); err != nil {
		t.Fatalf("WriteBatch(GLORIA) error = %v", err)
	}
	if err := s.WriteBatch(ctx, "VENICE", models.ProductRrc, 0, testRecords(1, start)); err != nil {
		t.Fatalf("WriteBatch(Rrc) error = %v", err)
	}

	refs, err := s.ListBatches("VENICE", models.ProductRrs)
	if err != nil {
		t.Fatalf("ListBatches() error = %v", err)
	}
	wantIndexes := []int{0, 2, 10}
	if len(refs) != len(wantIndexes) {
		t.Fatalf("ListBatches() returned %d refs, want %d", len(refs), len(wantIndexes))
	}
	for i, ref := range refs {
		if ref.Index != wantIndexes[i] {
			t.Errorf("refs[%d].Index = %d, want %d", i, ref.Index, wantIndexes[i])
		}
	}
}

func TestBatchPath_ZeroPadded(t *testing.T) {
	s := newTestStore(t)

	path := s.BatchPath("VENICE", models.ProductRrs, 7)
	if got := filepath.Base(path); got != "checkpoint_VENICE_Rrs_b0007.nc" {
		t.Errorf("BatchPath() base = %q, want checkpoint_VENICE_Rrs_b0007.nc", got)
	}
}

func TestDeleteBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 4, 11, 0, 0, 0, 0, time.UTC)

	if err := s.WriteBatch(ctx, "VENICE", models.ProductRrs, 0, testRecords(1, start)); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	refs, err := s.ListBatches("VENICE", models.ProductRrs)
	if err != nil || len(refs) != 1 {
		t.Fatalf("ListBatches() = %v, %v", refs, err)
	}

	if err := s.DeleteBatch(ctx, refs[0]); err != nil {
		t.Fatalf("DeleteBatch() error = %v", err)
	}
	refs, err = s.ListBatches("VENICE", models.ProductRrs)
	if err != nil {
		t.Fatalf("ListBatches() error = %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("ListBatches() after delete returned %d refs, want 0", len(refs))
	}
}

func TestFinalArtifactLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 4, 11, 0, 0, 0, 0, time.UTC)

	if s.FinalExists("VENICE", models.ProductRrs) {
		t.Fatal("FinalExists() should be false before any write")
	}
	if _, err := s.ReadFinal(ctx, "VENICE", models.ProductRrs); err == nil {
		t.Fatal("ReadFinal() should fail before any write")
	} else {
		var notFound *models.NotFoundError
		if !errors.As(err, &notFound) {
			t.Errorf("ReadFinal() error type = %T, want *models.NotFoundError", err)
		}
	}

	written := testRecords(4, start)
	path, err := s.WriteFinal(ctx, "VENICE", models.ProductRrs, written)
	if err != nil {
		t.Fatalf("WriteFinal() error = %v", err)
	}
	if filepath.Base(path) != "VENICE_Rrs_final.nc" {
		t.Errorf("WriteFinal() path base = %q, want VENICE_Rrs_final.nc", filepath.Base(path))
	}
	if !s.FinalExists("VENICE", models.ProductRrs) {
		t.Error("FinalExists() should be true after write")
	}

	got, err := s.ReadFinal(ctx, "VENICE", models.ProductRrs)
	if err != nil {
		t.Fatalf("ReadFinal() error = %v", err)
	}
	if len(got) != len(written) {
		t.Errorf("ReadFinal() returned %d records, want %d", len(got), len(written))
	}

	finals, err := s.ListFinals()
	if err != nil {
		t.Fatalf("ListFinals() error = %v", err)
	}
	if len(finals) != 1 {
		t.Fatalf("ListFinals() returned %d artifacts, want 1", len(finals))
	}
	if finals[0].StationCode != "VENICE" || finals[0].ProductType != models.ProductRrs {
		t.Errorf("ListFinals()[0] = %+v, want VENICE/Rrs", finals[0])
	}
	if finals[0].SizeBytes == 0 {
		t.Error("ListFinals()[0].SizeBytes should be non-zero")
	}
}

func TestParseFinalName(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantStation string
		wantProduct models.ProductType
		wantOK      bool
	}{
		{name: "simple station", input: "VENICE_Rrs_final.nc", wantStation: "VENICE", wantProduct: models.ProductRrs, wantOK: true},
		{name: "station with underscore", input: "SAN_MARCO_Rrc_final.nc", wantStation: "SAN_MARCO", wantProduct: models.ProductRrc, wantOK: true},
		{name: "not a final artifact", input: "checkpoint_VENICE_Rrs_b0001.nc", wantOK: false},
		{name: "unknown product", input: "VENICE_chlor_final.nc", wantOK: false},
		{name: "no station", input: "_Rrs_final.nc", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok := parseFinalName(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("parseFinalName(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if ref.StationCode != tt.wantStation || ref.ProductType != tt.wantProduct {
				t.Errorf("parseFinalName(%q) = %s/%s, want %s/%s",
					tt.input, ref.StationCode, ref.ProductType, tt.wantStation, tt.wantProduct)
			}
		})
	}
}

func TestTimeRoundTrip_MillisecondPrecision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := time.Date(2024, 4, 11, 13, 45, 30, 123_000_000, time.UTC)
	records := testRecords(1, want)

	if err := s.WriteBatch(ctx, "VENICE", models.ProductRrs, 0, records); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	refs, _ := s.ListBatches("VENICE", models.ProductRrs)
	got, err := s.ReadBatch(ctx, refs[0])
	if err != nil {
		t.Fatalf("ReadBatch() error = %v", err)
	}
	if !got[0].Time.Equal(want) {
		t.Errorf("time after round trip = %v, want %v", got[0].Time, want)
	}
}
