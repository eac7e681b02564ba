package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"oceancolor-platform/internal/models"
	"oceancolor-platform/internal/quality"
	"oceancolor-platform/internal/repository"
	"oceancolor-platform/internal/store"
	"oceancolor-platform/pkg/logging"
	"oceancolor-platform/pkg/metrics"
)

// ArtifactHandler serves the station registry, the extraction run ledger,
// and the final spectra artifacts produced by the extraction pipeline.
type ArtifactHandler struct {
	repo    repository.StationRepository
	store   *store.CheckpointStore
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewArtifactHandler creates a new artifact handler
func NewArtifactHandler(
	repo repository.StationRepository,
	checkpointStore *store.CheckpointStore,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ArtifactHandler {
	return &ArtifactHandler{
		repo:    repo,
		store:   checkpointStore,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SpectraRecord is one time step of a final artifact, without the
// redundant per-record wavelength axis.
type SpectraRecord struct {
	Time         time.Time `json:"time"`
	Latitude     float64   `json:"lat"`
	Longitude    float64   `json:"lon"`
	QualityFlags int64     `json:"quality_flags"`
	Spectrum     []float64 `json:"spectrum"`
}

// SpectraResponse is a final artifact rendered as JSON.
type SpectraResponse struct {
	StationCode string          `json:"station_code"`
	ProductType string          `json:"product_type"`
	Wavelength  []float64       `json:"wavelength"`
	Records     []SpectraRecord `json:"records"`
	Total       int             `json:"total"`
}

// ListStations handles GET /api/v1/stations
func (h *ArtifactHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/v1/stations").Observe(time.Since(startTime).Seconds())
	}()

	limit, offset := parsePagination(r, 100)

	stations, err := h.repo.ListStations(ctx, limit, offset)
	if err != nil {
		h.logger.Error(ctx, "[API_LIST_STATIONS_ERROR] Failed to list stations", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/v1/stations")
		h.sendError(w, "failed to list stations", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/v1/stations", "GET", "200")
	h.sendJSON(w, stations, http.StatusOK)
}

// ListRuns handles GET /api/v1/runs
func (h *ArtifactHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/v1/runs").Observe(time.Since(startTime).Seconds())
	}()

	limit, offset := parsePagination(r, 100)
	filter := repository.RunFilter{Limit: limit, Offset: offset}

	if station := r.URL.Query().Get("station_code"); station != "" {
		filter.StationCode = &station
	}
	if product := r.URL.Query().Get("product_type"); product != "" {
		if _, err := models.ParseProductType(product); err != nil {
			h.sendError(w, "invalid product_type, expected Rrs or Rrc", http.StatusBadRequest)
			return
		}
		filter.ProductType = &product
	}

	runs, err := h.repo.ListRuns(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_LIST_RUNS_ERROR] Failed to list extraction runs", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/v1/runs")
		h.sendError(w, "failed to list extraction runs", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/v1/runs", "GET", "200")
	h.sendJSON(w, runs, http.StatusOK)
}

// ListArtifacts handles GET /api/v1/artifacts
func (h *ArtifactHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/v1/artifacts").Observe(time.Since(startTime).Seconds())
	}()

	artifacts, err := h.store.ListFinals()
	if err != nil {
		h.logger.Error(ctx, "[API_LIST_ARTIFACTS_ERROR] Failed to scan output directory", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/v1/artifacts")
		h.sendError(w, "failed to list artifacts", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/v1/artifacts", "GET", "200")
	h.sendJSON(w, artifacts, http.StatusOK)
}

// GetSpectra handles GET /api/v1/artifacts/{station}/{product}
func (h *ArtifactHandler) GetSpectra(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/v1/artifacts/spectra").Observe(time.Since(startTime).Seconds())
	}()

	vars := mux.Vars(r)
	station := vars["station"]
	product, err := models.ParseProductType(vars["product"])
	if err != nil {
		h.sendError(w, "invalid product type, expected Rrs or Rrc", http.StatusBadRequest)
		return
	}

	records, err := h.store.ReadFinal(ctx, station, product)
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			h.metrics.RecordAPIError("not_found", "/api/v1/artifacts/spectra")
			h.sendError(w, "no final artifact for this station/product", http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_GET_SPECTRA_ERROR] Failed to read final artifact", logging.Fields{
			"station_code": station,
			"product_type": product.String(),
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/v1/artifacts/spectra")
		h.sendError(w, "failed to read final artifact", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("exclude_flagged") == "true" {
		records = quality.DefaultFilter().Apply(records)
	}

	response := SpectraResponse{
		StationCode: station,
		ProductType: product.String(),
		Records:     make([]SpectraRecord, 0, len(records)),
		Total:       len(records),
	}
	if len(records) > 0 {
		response.Wavelength = records[0].Wavelength
	}
	for _, rec := range records {
		response.Records = append(response.Records, SpectraRecord{
			Time:         rec.Time,
			Latitude:     rec.Latitude,
			Longitude:    rec.Longitude,
			QualityFlags: rec.QualityFlags,
			Spectrum:     rec.Spectrum,
		})
	}

	h.metrics.RecordAPIRequest("/api/v1/artifacts/spectra", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *ArtifactHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.repo.HealthCheck(ctx); err != nil {
		h.sendJSON(w, map[string]string{"status": "degraded", "database": err.Error()}, http.StatusServiceUnavailable)
		return
	}

	h.sendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// RegisterRoutes registers all API routes
func (h *ArtifactHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/stations", h.ListStations).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/runs", h.ListRuns).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/artifacts", h.ListArtifacts).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/artifacts/{station}/{product}", h.GetSpectra).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
}

func (h *ArtifactHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error(nil, "[API_ENCODE_ERROR] Failed to encode response", logging.Fields{}, err)
	}
}

func (h *ArtifactHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.sendJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

func parsePagination(r *http.Request, defaultLimit int) (int, int) {
	limit := defaultLimit
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
