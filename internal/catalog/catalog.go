// Package catalog resolves station coordinates and a temporal range into
// an ordered list of granule handles, and opens byte streams for granule
// content. The remote search service itself is an external collaborator
// behind the Client interface; this package only translates domain terms
// into catalog terms.
package catalog

import (
	"context"
	"io"
	"time"

	"oceancolor-platform/internal/models"
	"oceancolor-platform/pkg/logging"
	"oceancolor-platform/pkg/metrics"
)

// Granule is an opaque handle to one remote data file: a single satellite
// overpass product for one time instant over some geographic footprint.
type Granule struct {
	ID   string
	Name string
}

// Stream is an open byte stream over one granule's content.
type Stream interface {
	io.ReadSeeker
	io.Closer
}

// Point is a geographic query point in degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Client is the external catalog collaborator. Search results and Open
// streams are order-preserving: Open(gs)[i] corresponds to gs[i].
// A count of -1 requests an unbounded result set.
type Client interface {
	Search(ctx context.Context, identifier string, point Point, temporal models.TimeRange, count int) ([]Granule, error)
	Open(ctx context.Context, granules []Granule) ([]Stream, error)
}

// Locator translates (product, station coordinates, time window) into an
// ordered granule list via the catalog collaborator.
type Locator struct {
	client  Client
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewLocator creates a granule locator backed by the given catalog client.
func NewLocator(client Client, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Locator {
	return &Locator{
		client:  client,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Find returns every granule for the product covering the point within the
// temporal range, in catalog order. It does not retry; a collaborator
// failure is fatal to the current station/product run.
func (l *Locator) Find(ctx context.Context, product models.ProductType, lat, lon float64, temporal models.TimeRange) ([]Granule, error) {
	identifier := product.CatalogIdentifier()
	start := time.Now()

	granules, err := l.client.Search(ctx, identifier, Point{Latitude: lat, Longitude: lon}, temporal, -1)
	l.metrics.CatalogSearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &models.CatalogError{
			Op:         "search",
			Identifier: identifier,
			Err:        err,
		}
	}

	l.logger.Info(ctx, "[CATALOG_SEARCH] Granule search completed", logging.Fields{
		"identifier":    identifier,
		"product_type":  product.String(),
		"lat":           lat,
		"lon":           lon,
		"start":         temporal.Start.Format(time.RFC3339),
		"end":           temporal.End.Format(time.RFC3339),
		"granule_count": len(granules),
		"duration_ms":   time.Since(start).Milliseconds(),
	})

	return granules, nil
}

// Open opens byte streams for the given granules via the collaborator,
// preserving order.
func (l *Locator) Open(ctx context.Context, product models.ProductType, granules []Granule) ([]Stream, error) {
	streams, err := l.client.Open(ctx, granules)
	if err != nil {
		return nil, &models.CatalogError{
			Op:         "open",
			Identifier: product.CatalogIdentifier(),
			Err:        err,
		}
	}
	return streams, nil
}
