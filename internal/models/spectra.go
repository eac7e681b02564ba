package models

import (
	"fmt"
	"time"
)

// ProductType identifies an ocean-color reflectance product.
type ProductType string

const (
	// ProductRrs is the standard atmosphere-corrected remote sensing reflectance.
	ProductRrs ProductType = "Rrs"
	// ProductRrc is the Rayleigh-corrected reflectance.
	ProductRrc ProductType = "Rrc"
)

// ParseProductType validates a product type string.
func ParseProductType(s string) (ProductType, error) {
	switch ProductType(s) {
	case ProductRrs:
		return ProductRrs, nil
	case ProductRrc:
		return ProductRrc, nil
	}
	return "", &ValidationError{
		Field:   "product_type",
		Value:   s,
		Message: fmt.Sprintf("unknown product type %q, expected Rrs or Rrc", s),
	}
}

// CatalogIdentifier returns the external catalog collection identifier
// for this product.
func (p ProductType) CatalogIdentifier() string {
	if p == ProductRrc {
		return "PACE_OCI_L2_RRC"
	}
	return "PACE_OCI_L2_AOP"
}

// VarName returns the geophysical variable name holding the spectral data.
func (p ProductType) VarName() string {
	return string(p)
}

func (p ProductType) String() string { return string(p) }

// Station represents a fixed geographic monitoring station
type Station struct {
	Code      string    `json:"station_code" db:"station_code"`
	Name      string    `json:"name" db:"name"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TimeRange is a closed temporal interval for catalog queries.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// PixelRecord is one single-pixel observation extracted from a granule.
// Latitude and Longitude are the coordinates of the matched pixel, not the
// requested station; they differ by the nearest-neighbor residual.
type PixelRecord struct {
	Wavelength   []float64 `json:"wavelength"`
	Spectrum     []float64 `json:"spectrum"`
	Time         time.Time `json:"time"`
	Latitude     float64   `json:"lat"`
	Longitude    float64   `json:"lon"`
	QualityFlags int64     `json:"quality_flags"`
}

// Validate checks the spectral axis invariant: the spectrum must have one
// value per wavelength band, in the same order.
func (r *PixelRecord) Validate() error {
	if len(r.Spectrum) != len(r.Wavelength) {
		return &ValidationError{
			Field: "spectrum",
			Value: fmt.Sprintf("%d values", len(r.Spectrum)),
			Message: fmt.Sprintf("spectrum length %d does not match wavelength axis length %d",
				len(r.Spectrum), len(r.Wavelength)),
		}
	}
	if r.Time.IsZero() {
		return &ValidationError{
			Field:   "time",
			Value:   "",
			Message: "record has no timestamp",
		}
	}
	return nil
}

// ExtractionRun is one ledger row describing a completed (or aborted)
// extraction pass for a station/product pair.
type ExtractionRun struct {
	ID               int64     `json:"id" db:"id"`
	StationCode      string    `json:"station_code" db:"station_code"`
	ProductType      string    `json:"product_type" db:"product_type"`
	GranulesTotal    int       `json:"granules_total" db:"granules_total"`
	RecordsExtracted int       `json:"records_extracted" db:"records_extracted"`
	GranulesFailed   int       `json:"granules_failed" db:"granules_failed"`
	ArtifactPath     string    `json:"artifact_path" db:"artifact_path"`
	DurationSeconds  float64   `json:"duration_seconds" db:"duration_seconds"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
