package granule

import (
	"math"
	"time"

	"oceancolor-platform/internal/models"
)

// timeCoverageLayouts are the timestamp formats observed in granule
// time_coverage_start attributes.
var timeCoverageLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// Extract locates the pixel nearest (lat, lon) on the granule's 2D
// navigation grid and returns its full spectral vector for varName,
// together with the matched pixel's own coordinates, its quality bitmask,
// and the granule's coverage-start timestamp.
//
// The nearest pixel minimizes the elementwise Euclidean distance in
// degrees; on an exact tie the first minimum in scan order wins, which is
// accepted nondeterminism of the underlying grid ordering.
func Extract(src Source, granuleName string, lat, lon float64, varName string) (*models.PixelRecord, error) {
	nav, err := src.Group(GroupNavigation)
	if err != nil {
		return nil, extractionErr(granuleName, "missing navigation group", err)
	}
	geo, err := src.Group(GroupGeophysics)
	if err != nil {
		return nil, extractionErr(granuleName, "missing geophysical group", err)
	}
	bands, err := src.Group(GroupBands)
	if err != nil {
		return nil, extractionErr(granuleName, "missing band parameters group", err)
	}

	lats, err := nav.Floats(VarLatitude)
	if err != nil {
		return nil, extractionErr(granuleName, "missing latitude grid", err)
	}
	lons, err := nav.Floats(VarLongitude)
	if err != nil {
		return nil, extractionErr(granuleName, "missing longitude grid", err)
	}
	if len(lats.Shape) != 2 || len(lons.Shape) != 2 ||
		lats.Shape[0] != lons.Shape[0] || lats.Shape[1] != lons.Shape[1] {
		return nil, extractionErr(granuleName, "latitude/longitude grids are not matching 2D arrays", nil)
	}

	iy, ix, err := nearestPixel(lats, lons, lat, lon)
	if err != nil {
		return nil, extractionErr(granuleName, "nearest pixel search failed", err)
	}

	wavelength, err := bands.Floats(VarWavelength)
	if err != nil {
		return nil, extractionErr(granuleName, "missing wavelength axis", err)
	}
	if len(wavelength.Shape) != 1 {
		return nil, extractionErr(granuleName, "wavelength axis is not 1D", nil)
	}

	spectral, err := geo.Floats(varName)
	if err != nil {
		return nil, extractionErr(granuleName, "missing spectral variable "+varName, err)
	}
	spectrum, err := spectrumAt(spectral, iy, ix, lats.Shape, wavelength.Shape[0])
	if err != nil {
		return nil, extractionErr(granuleName, "reading spectral vector", err)
	}

	flags, err := geo.Ints(VarFlags)
	if err != nil {
		return nil, extractionErr(granuleName, "missing quality flags", err)
	}
	if len(flags.Shape) != 2 || flags.Shape[0] != lats.Shape[0] || flags.Shape[1] != lats.Shape[1] {
		return nil, extractionErr(granuleName, "quality flag grid shape mismatch", nil)
	}

	ts, ok := nav.Attr(AttrTimeCoverageStart)
	if !ok {
		return nil, extractionErr(granuleName, "missing time_coverage_start attribute", nil)
	}
	t, err := parseCoverageStart(ts)
	if err != nil {
		return nil, extractionErr(granuleName, "invalid time_coverage_start attribute", err)
	}

	nx := lats.Shape[1]
	record := &models.PixelRecord{
		Wavelength:   wavelength.Data,
		Spectrum:     spectrum,
		Time:         t,
		Latitude:     lats.Data[iy*nx+ix],
		Longitude:    lons.Data[iy*nx+ix],
		QualityFlags: flags.Data[iy*nx+ix],
	}
	if err := record.Validate(); err != nil {
		return nil, extractionErr(granuleName, "inconsistent record", err)
	}
	return record, nil
}

// nearestPixel returns the (row, column) of the grid cell minimizing the
// Euclidean distance to the target coordinate.
func nearestPixel(lats, lons *Array, lat, lon float64) (int, int, error) {
	best := math.Inf(1)
	bestIdx := -1
	for i := range lats.Data {
		dy := lats.Data[i] - lat
		dx := lons.Data[i] - lon
		d := dy*dy + dx*dx
		if d < best {
			best = d
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return 0, 0, errEmptyGrid
	}
	return unravel(bestIdx, lats.Shape)
}

// spectrumAt reads the full band vector at one pixel. The spectral
// variable must be 3D with the band axis last and its leading dimensions
// must match the navigation grid.
func spectrumAt(spectral *Array, iy, ix int, grid []int, nBands int) ([]float64, error) {
	if len(spectral.Shape) != 3 {
		return nil, errShape{got: spectral.Shape, want: "(lines, pixels, bands)"}
	}
	ny, nx, nb := spectral.Shape[0], spectral.Shape[1], spectral.Shape[2]
	if ny != grid[0] || nx != grid[1] {
		return nil, errShape{got: spectral.Shape, want: "leading dims matching navigation grid"}
	}
	if nb != nBands {
		return nil, errShape{got: spectral.Shape, want: "band axis matching wavelength length"}
	}
	offset := (iy*nx + ix) * nb
	spectrum := make([]float64, nb)
	copy(spectrum, spectral.Data[offset:offset+nb])
	return spectrum, nil
}

func parseCoverageStart(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeCoverageLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func extractionErr(granule, reason string, err error) *models.ExtractionError {
	return &models.ExtractionError{
		Granule: granule,
		Reason:  reason,
		Err:     err,
	}
}
