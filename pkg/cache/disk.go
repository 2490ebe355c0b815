// Package cache provides osm.Source layers that keep element-graph
// documents between runs so repeated assemblies avoid Overpass.
//
// Every layer wraps the next source and forwards misses and invalidations
// to it. A typical chain is Memory -> Disk -> Redis -> overpass.Client.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/NERVsystems/osmbounds/pkg/monitoring"
	"github.com/NERVsystems/osmbounds/pkg/osm"
	"github.com/NERVsystems/osmbounds/pkg/tracing"
)

const (
	fileExt        = ".osm"
	quarantinedExt = ".osm.quarantined"
)

// Disk caches documents as files under dir, one per element:
// <dir>/<kind>/<id>.osm. It is safe for concurrent use; concurrent misses
// for the same element share one upstream fetch.
type Disk struct {
	dir    string
	next   osm.Source
	group  singleflight.Group
	logger *slog.Logger
}

// NewDisk returns a disk cache rooted at dir in front of next.
func NewDisk(dir string, next osm.Source) *Disk {
	return &Disk{
		dir:    dir,
		next:   next,
		logger: slog.Default(),
	}
}

// SetLogger sets the logger for the cache
func (d *Disk) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// Path returns the file holding the document for kind and id.
func (d *Disk) Path(kind osm.Kind, id int64) string {
	return filepath.Join(d.dir, kind.String(), strconv.FormatInt(id, 10)+fileExt)
}

// Fetch serves the cached document, fetching and storing it on a miss.
func (d *Disk) Fetch(ctx context.Context, kind osm.Kind, id int64) (io.ReadCloser, error) {
	path := d.Path(kind, id)

	f, err := os.Open(path)
	if err == nil {
		observe(ctx, tracing.CacheLayerDisk, true, path)
		d.logger.Debug("disk cache hit", "kind", kind.String(), "id", id)
		return f, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("opening cache entry: %w", err)
	}

	observe(ctx, tracing.CacheLayerDisk, false, path)
	if d.next == nil {
		return nil, fmt.Errorf("%s/%d is not cached: %w", kind, id, os.ErrNotExist)
	}

	v, err, _ := d.group.Do(path, func() (interface{}, error) {
		return d.fill(ctx, kind, id, path)
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(v.([]byte))), nil
}

// fill fetches from the next layer and writes the entry atomically so a
// partially written file is never served.
func (d *Disk) fill(ctx context.Context, kind osm.Kind, id int64, path string) ([]byte, error) {
	rc, err := d.next.Fetch(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s/%d: %w", kind, id, err)
	}

	if err := writeAtomic(path, data); err != nil {
		// The document is still usable; only caching failed.
		d.logger.Warn("failed to write cache entry", "path", path, "error", err)
	}
	return data, nil
}

// Invalidate moves the entry aside as <id>.osm.quarantined, replacing any
// earlier quarantine, and forwards to the next layer.
func (d *Disk) Invalidate(ctx context.Context, kind osm.Kind, id int64) error {
	path := d.Path(kind, id)
	quarantine := filepath.Join(filepath.Dir(path), strconv.FormatInt(id, 10)+quarantinedExt)

	err := os.Rename(path, quarantine)
	switch {
	case err == nil:
		monitoring.RecordCacheQuarantine(tracing.CacheLayerDisk)
		d.logger.Warn("quarantined cache entry", "path", quarantine)
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("quarantining %s: %w", path, err)
	}

	if d.next != nil {
		return d.next.Invalidate(ctx, kind, id)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
