// Package quality filters extracted pixel records by their per-pixel
// quality bitmask. Each bit of the mask encodes one independent quality
// condition (land, cloud, saturation, ...); a record passes a filter when
// none of the filtered bits are set.
package quality

import "oceancolor-platform/internal/models"

// Standard L2 flag bit positions used by the default filter.
const (
	BitLand       uint = 1
	BitCloud      uint = 3
	BitSaturation uint = 5
)

// Filter is a pure predicate over a quality bitmask.
type Filter struct {
	mask int64
}

// NewFilter builds a filter that rejects records with any of the given
// bit positions set.
func NewFilter(bits ...uint) Filter {
	var mask int64
	for _, b := range bits {
		mask |= 1 << b
	}
	return Filter{mask: mask}
}

// DefaultFilter rejects land, cloud, and saturation pixels.
func DefaultFilter() Filter {
	return NewFilter(BitLand, BitCloud, BitSaturation)
}

// Mask returns the combined bitmask the filter tests against.
func (f Filter) Mask() int64 { return f.mask }

// Pass reports whether a quality bitmask clears the filter.
func (f Filter) Pass(flags int64) bool {
	return flags&f.mask == 0
}

// Apply returns the subset of records whose quality flags clear the
// filter, preserving order.
func (f Filter) Apply(records []*models.PixelRecord) []*models.PixelRecord {
	if f.mask == 0 {
		return records
	}
	kept := make([]*models.PixelRecord, 0, len(records))
	for _, r := range records {
		if f.Pass(r.QualityFlags) {
			kept = append(kept, r)
		}
	}
	return kept
}
