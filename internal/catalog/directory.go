package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"oceancolor-platform/internal/models"
)

// DirectoryCatalog is a Client over a local directory of already-downloaded
// granule files. Files are matched by collection identifier prefix and
// ordered lexically, which for standard granule naming
// (IDENTIFIER.YYYYMMDDTHHMMSS....nc) is chronological order.
//
// It serves archives staged by an external downloader; remote search and
// authentication stay outside this module.
type DirectoryCatalog struct {
	dir string
}

// NewDirectoryCatalog creates a catalog over the given directory.
func NewDirectoryCatalog(dir string) *DirectoryCatalog {
	return &DirectoryCatalog{dir: dir}
}

// Search lists granule files whose names begin with the collection
// identifier. The point and temporal range are already encoded in what was
// staged into the directory; count caps the result when non-negative.
func (c *DirectoryCatalog) Search(ctx context.Context, identifier string, point Point, temporal models.TimeRange, count int) ([]Granule, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("reading granule directory %s: %w", c.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, identifier) && strings.HasSuffix(name, ".nc") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if count >= 0 && len(names) > count {
		names = names[:count]
	}

	granules := make([]Granule, len(names))
	for i, name := range names {
		granules[i] = Granule{
			ID:   filepath.Join(c.dir, name),
			Name: name,
		}
	}
	return granules, nil
}

// Open opens each granule file in order. A granule that cannot be opened
// fails the whole call; streams opened so far are closed.
func (c *DirectoryCatalog) Open(ctx context.Context, granules []Granule) ([]Stream, error) {
	streams := make([]Stream, 0, len(granules))
	for _, g := range granules {
		f, err := os.Open(g.ID)
		if err != nil {
			for _, s := range streams {
				s.Close()
			}
			return nil, fmt.Errorf("opening granule %s: %w", g.Name, err)
		}
		streams = append(streams, f)
	}
	return streams, nil
}
