package store

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"

	"oceancolor-platform/internal/models"
)

var errNoRecords = errors.New("no records to persist")

// ArtifactRef describes one final artifact file.
type ArtifactRef struct {
	StationCode string             `json:"station_code"`
	ProductType models.ProductType `json:"product_type"`
	Path        string             `json:"path"`
	SizeBytes   int64              `json:"size_bytes"`
	ModifiedAt  time.Time          `json:"modified_at"`
}

func parseFinalName(name string) (ArtifactRef, bool) {
	base := strings.TrimSuffix(name, "_final.nc")
	if base == name {
		return ArtifactRef{}, false
	}
	i := strings.LastIndex(base, "_")
	if i < 1 {
		return ArtifactRef{}, false
	}
	product, err := models.ParseProductType(base[i+1:])
	if err != nil {
		return ArtifactRef{}, false
	}
	return ArtifactRef{StationCode: base[:i], ProductType: product}, true
}

// writeRecords serializes records as a NetCDF classic file with dimensions
// (time, wavelength). Records are concatenated along the time dimension in
// the order given; the wavelength axis is shared across all records of a
// product.
func writeRecords(path, varName string, records []*models.PixelRecord, globalAttrs map[string]string) error {
	if len(records) == 0 {
		return errNoRecords
	}
	wavelength := records[0].Wavelength
	nb := len(wavelength)
	nt := len(records)
	if nb == 0 {
		return fmt.Errorf("record has empty wavelength axis")
	}
	for i, r := range records {
		if len(r.Spectrum) != nb || len(r.Wavelength) != nb {
			return fmt.Errorf("record %d spectral length %d does not match wavelength axis length %d",
				i, len(r.Spectrum), nb)
		}
	}

	h := cdf.NewHeader([]string{"time", "wavelength"}, []int{nt, nb})
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", "seconds since 1970-01-01 00:00:00 UTC")
	h.AddVariable("lat", []string{"time"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"time"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddVariable("l2_flags", []string{"time"}, []int32{0})
	h.AddVariable("wavelength", []string{"wavelength"}, []float64{0})
	h.AddAttribute("wavelength", "units", "nm")
	h.AddVariable(varName, []string{"time", "wavelength"}, []float64{0})
	h.AddAttribute(varName, "long_name", varName+" reflectance spectrum per time step")
	for k, v := range globalAttrs {
		h.AddAttribute("", k, v)
	}
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("defining checkpoint header: %w", err)
	}

	ff, err := os.Create(path)
	if err != nil {
		return err
	}
	defer ff.Close()

	f, err := cdf.Create(ff, h)
	if err != nil {
		return err
	}

	times := make([]float64, nt)
	lats := make([]float64, nt)
	lons := make([]float64, nt)
	flags := make([]int32, nt)
	spectra := make([]float64, 0, nt*nb)
	for i, r := range records {
		times[i] = float64(r.Time.UnixMilli()) / 1000.0
		lats[i] = r.Latitude
		lons[i] = r.Longitude
		flags[i] = int32(r.QualityFlags)
		spectra = append(spectra, r.Spectrum...)
	}

	for _, v := range []struct {
		name   string
		values interface{}
	}{
		{"time", times},
		{"lat", lats},
		{"lon", lons},
		{"l2_flags", flags},
		{"wavelength", wavelength},
		{varName, spectra},
	} {
		end := f.Header.Lengths(v.name)
		begin := make([]int, len(end))
		w := f.Writer(v.name, begin, end)
		if _, err := w.Write(v.values); err != nil {
			return fmt.Errorf("writing variable %s: %w", v.name, err)
		}
	}
	return nil
}

// readRecords deserializes a checkpoint or final artifact back into pixel
// records.
func readRecords(path, varName string) ([]*models.PixelRecord, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer ff.Close()

	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint file: %w", err)
	}

	lengths := f.Header.Lengths(varName)
	if len(lengths) != 2 {
		return nil, fmt.Errorf("variable %s has %d dimensions, want 2", varName, len(lengths))
	}
	nt, nb := lengths[0], lengths[1]

	times, err := readFloat64s(f, "time", nt)
	if err != nil {
		return nil, err
	}
	lats, err := readFloat64s(f, "lat", nt)
	if err != nil {
		return nil, err
	}
	lons, err := readFloat64s(f, "lon", nt)
	if err != nil {
		return nil, err
	}
	wavelength, err := readFloat64s(f, "wavelength", nb)
	if err != nil {
		return nil, err
	}
	spectra, err := readFloat64s(f, varName, nt*nb)
	if err != nil {
		return nil, err
	}

	r := f.Reader("l2_flags", nil, nil)
	flagBuf := make([]int32, nt)
	if _, err := r.Read(flagBuf); err != nil {
		return nil, fmt.Errorf("reading variable l2_flags: %w", err)
	}

	records := make([]*models.PixelRecord, nt)
	for i := 0; i < nt; i++ {
		records[i] = &models.PixelRecord{
			Wavelength:   wavelength,
			Spectrum:     spectra[i*nb : (i+1)*nb : (i+1)*nb],
			Time:         time.UnixMilli(int64(math.Round(times[i] * 1000.0))).UTC(),
			Latitude:     lats[i],
			Longitude:    lons[i],
			QualityFlags: int64(flagBuf[i]),
		}
	}
	return records, nil
}

func readFloat64s(f *cdf.File, name string, n int) ([]float64, error) {
	r := f.Reader(name, nil, nil)
	buf := make([]float64, n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading variable %s: %w", name, err)
	}
	return buf, nil
}
