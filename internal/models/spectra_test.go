package models

import (
	"errors"
	"testing"
	"time"
)

func TestParseProductType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ProductType
		wantErr bool
	}{
		{name: "standard reflectance", input: "Rrs", want: ProductRrs},
		{name: "rayleigh corrected", input: "Rrc", want: ProductRrc},
		{name: "unknown product", input: "chlor_a", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "case sensitive", input: "rrs", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProductType(tt.input)

			if (err != nil) != tt.wantErr {
				t.Errorf("ParseProductType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseProductType(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestProductType_CatalogIdentifier(t *testing.T) {
	if got := ProductRrs.CatalogIdentifier(); got != "PACE_OCI_L2_AOP" {
		t.Errorf("Rrs identifier = %v, want PACE_OCI_L2_AOP", got)
	}
	if got := ProductRrc.CatalogIdentifier(); got != "PACE_OCI_L2_RRC" {
		t.Errorf("Rrc identifier = %v, want PACE_OCI_L2_RRC", got)
	}
}

func TestProductType_VarName(t *testing.T) {
	if got := ProductRrs.VarName(); got != "Rrs" {
		t.Errorf("Rrs var name = %v, want Rrs", got)
	}
	if got := ProductRrc.VarName(); got != "Rrc" {
		t.Errorf("Rrc var name = %v, want Rrc", got)
	}
}

func TestPixelRecord_Validate(t *testing.T) {
	now := time.Date(2024, 4, 11, 13, 45, 0, 0, time.UTC)

	tests := []struct {
		name    string
		record  PixelRecord
		wantErr bool
	}{
		{
			name: "valid record",
			record: PixelRecord{
				Wavelength: []float64{412, 443, 490},
				Spectrum:   []float64{0.001, 0.002, 0.003},
				Time:       now,
			},
		},
		{
			name: "spectrum shorter than wavelength axis",
			record: PixelRecord{
				Wavelength: []float64{412, 443, 490},
				Spectrum:   []float64{0.001, 0.002},
				Time:       now,
			},
			wantErr: true,
		},
		{
			name: "spectrum longer than wavelength axis",
			record: PixelRecord{
				Wavelength: []float64{412, 443},
				Spectrum:   []float64{0.001, 0.002, 0.003},
				Time:       now,
			},
			wantErr: true,
		},
		{
			name: "zero timestamp",
			record: PixelRecord{
				Wavelength: []float64{412},
				Spectrum:   []float64{0.001},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	underlying := errors.New("connection refused")

	catalogErr := &CatalogError{Op: "search", Identifier: "PACE_OCI_L2_AOP", Err: underlying}
	if !errors.Is(catalogErr, underlying) {
		t.Error("CatalogError should unwrap to the underlying error")
	}
	if !catalogErr.IsTransient() {
		t.Error("CatalogError should be transient")
	}

	extractionErr := &ExtractionError{Granule: "g1", Reason: "missing group"}
	if extractionErr.IsTransient() {
		t.Error("ExtractionError should not be transient")
	}
	if extractionErr.Error() == "" {
		t.Error("ExtractionError should render a message without an underlying error")
	}

	persistenceErr := &PersistenceError{Op: "write_batch", Path: "/tmp/x.nc", Err: underlying}
	if !errors.Is(persistenceErr, underlying) {
		t.Error("PersistenceError should unwrap to the underlying error")
	}
	if !persistenceErr.IsTransient() {
		t.Error("PersistenceError should be transient")
	}

	notFound := &NotFoundError{Resource: "station", ID: "VENICE"}
	if notFound.IsTransient() {
		t.Error("NotFoundError should not be transient")
	}
}
