package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"oceancolor-platform/internal/models"
	"oceancolor-platform/internal/quality"
	"oceancolor-platform/internal/repository"
	"oceancolor-platform/internal/store"
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
		testCollector = metrics.NewCollector("handlers_test")
	})
	return testCollector
}

func quietLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("handlers-test", "test", logging.FatalLevel)
	logger.SetOutput(io.Discard)
	return logger
}

// fakeRepo backs StationRepository with in-memory data.
type fakeRepo struct {
	stations  []*models.Station
	runs      []*models.ExtractionRun
	healthErr error
	listErr   error
}

func (r *fakeRepo) CreateStation(ctx context.Context, station *models.Station) error { return nil }

func (r *fakeRepo) GetStation(ctx context.Context, code string) (*models.Station, error) {
	for _, s := range r.stations {
		if s.Code == code {
			return s, nil
		}
	}
	return nil, &models.NotFoundError{Resource: "station", ID: code}
}

func (r *fakeRepo) ListStations(ctx context.Context, limit, offset int) ([]*models.Station, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.stations, nil
}

func (r *fakeRepo) CreateRun(ctx context.Context, run *models.ExtractionRun) error { return nil }

func (r *fakeRepo) ListRuns(ctx context.Context, filter repository.RunFilter) ([]*models.ExtractionRun, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*models.ExtractionRun, 0)
	for _, run := range r.runs {
		if filter.StationCode != nil && run.StationCode != *filter.StationCode {
			continue
		}
		if filter.ProductType != nil && run.ProductType != *filter.ProductType {
			continue
		}
		out = append(out, run)
	}
	return out, nil
}

func (r *fakeRepo) HealthCheck(ctx context.Context) error { return r.healthErr }

func newTestRouter(t *testing.T, repo *fakeRepo) (*mux.Router, *store.CheckpointStore) {
	t.Helper()

	checkpointStore, err := store.New(t.TempDir(), quietLogger(), sharedCollector())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}

	handler := NewArtifactHandler(repo, checkpointStore, quietLogger(), sharedCollector())
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return router, checkpointStore
}

func seedFinal(t *testing.T, s *store.CheckpointStore, station string, product models.ProductType, flags []int64) {
	t.Helper()
	base := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	records := make([]*models.PixelRecord, len(flags))
	for i, f := range flags {
		records[i] = &models.PixelRecord{
			Wavelength:   []float64{443, 555},
			Spectrum:     []float64{0.001, 0.002},
			Time:         base.AddDate(0, 0, i),
			Latitude:     45.31,
			Longitude:    12.51,
			QualityFlags: f,
		}
	}
	if _, err := s.WriteFinal(context.Background(), station, product, records); err != nil {
		t.Fatalf("seeding final artifact: %v", err)
	}
}

func TestListStations(t *testing.T) {
	repo := &fakeRepo{stations: []*models.Station{
		{Code: "VENICE", Latitude: 45.31, Longitude: 12.51},
	}}
	router, _ := newTestRouter(t, repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stations", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stations []*models.Station
	if err := json.Unmarshal(rec.Body.Bytes(), &stations); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(stations) != 1 || stations[0].Code != "VENICE" {
		t.Errorf("response = %v, want one VENICE station", stations)
	}
}

func TestListStations_RepositoryFailure(t *testing.T) {
	repo := &fakeRepo{listErr: errors.New("connection reset")}
	router, _ := newTestRouter(t, repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stations", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestListRuns_ProductFilter(t *testing.T) {
	repo := &fakeRepo{runs: []*models.ExtractionRun{
		{ID: 1, StationCode: "VENICE", ProductType: "Rrs"},
		{ID: 2, StationCode: "VENICE", ProductType: "Rrc"},
	}}
	router, _ := newTestRouter(t, repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?product_type=Rrc", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var runs []*models.ExtractionRun
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != 2 {
		t.Errorf("response = %v, want only the Rrc run", runs)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?product_type=chlor_a", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status for invalid product = %d, want 400", rec.Code)
	}
}

func TestListArtifacts(t *testing.T) {
	router, checkpointStore := newTestRouter(t, &fakeRepo{})
	seedFinal(t, checkpointStore, "VENICE", models.ProductRrs, []int64{0, 0})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var artifacts []store.ArtifactRef
	if err := json.Unmarshal(rec.Body.Bytes(), &artifacts); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].StationCode != "VENICE" {
		t.Errorf("response = %v, want one VENICE artifact", artifacts)
	}
}

func TestGetSpectra(t *testing.T) {
	router, checkpointStore := newTestRouter(t, &fakeRepo{})
	cloudy := int64(1 << quality.BitCloud)
	seedFinal(t, checkpointStore, "VENICE", models.ProductRrs, []int64{0, cloudy, 0})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/VENICE/Rrs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var response SpectraResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if response.Total != 3 {
		t.Errorf("Total = %d, want 3", response.Total)
	}
	if len(response.Wavelength) != 2 {
		t.Errorf("Wavelength = %v, want the shared 2-band axis", response.Wavelength)
	}

	// Flagged records drop out on request.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/VENICE/Rrs?exclude_flagged=true", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decoding filtered response: %v", err)
	}
	if response.Total != 2 {
		t.Errorf("filtered Total = %d, want 2", response.Total)
	}
}

func TestGetSpectra_Errors(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/VENICE/Rrs", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status for missing artifact = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/VENICE/chlor_a", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status for invalid product = %d, want 400", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	degraded, _ := newTestRouter(t, &fakeRepo{healthErr: errors.New("dial tcp: refused")})
	rec = httptest.NewRecorder()
	degraded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", rec.Code)
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", query: "", wantLimit: 100, wantOffset: 0},
		{name: "explicit values", query: "?limit=25&offset=50", wantLimit: 25, wantOffset: 50},
		{name: "limit above cap ignored", query: "?limit=5000", wantLimit: 100, wantOffset: 0},
		{name: "negative values ignored", query: "?limit=-1&offset=-2", wantLimit: 100, wantOffset: 0},
		{name: "garbage ignored", query: "?limit=abc", wantLimit: 100, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/stations"+tt.query, nil)
			limit, offset := parsePagination(r, 100)
			if limit != tt.wantLimit || offset != tt.wantOffset {
				t.Errorf("parsePagination() = (%d, %d), want (%d, %d)", limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}
