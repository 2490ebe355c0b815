package osm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Source returns the element-graph document for one element: the element
// and everything it transitively references. Implementations cache and rate
// limit as they see fit. Invalidate drops a cached document that failed to
// parse so the next Fetch retrieves it again.
type Source interface {
	Fetch(ctx context.Context, kind Kind, id int64) (io.ReadCloser, error)
	Invalidate(ctx context.Context, kind Kind, id int64) error
}

// FetchObserver is notified of every fetch a Fetcher performs.
type FetchObserver func(kind Kind, id int64, elements int, err error)

// Fetcher resolves references from its store and fetches unknown elements
// from a Source, parsing the result into the same store.
type Fetcher struct {
	store    *Store
	source   Source
	logger   *slog.Logger
	observer FetchObserver
}

// NewFetcher returns a fetching resolver over store and source.
func NewFetcher(store *Store, source Source) *Fetcher {
	return &Fetcher{
		store:  store,
		source: source,
		logger: slog.Default(),
	}
}

// SetLogger sets the logger for the fetcher and the parsers it creates.
func (f *Fetcher) SetLogger(logger *slog.Logger) {
	f.logger = logger
}

// SetObserver registers a callback invoked after each fetch.
func (f *Fetcher) SetObserver(obs FetchObserver) {
	f.observer = obs
}

// Store returns the store the fetcher populates.
func (f *Fetcher) Store() *Store {
	return f.store
}

// Resolve returns a known element or fetches it. An empty document means the
// element does not exist.
func (f *Fetcher) Resolve(ctx context.Context, kind Kind, id int64) (Element, bool, error) {
	if el, ok := f.store.Lookup(kind, id); ok && !el.Missing() {
		return el, true, nil
	}

	f.logger.Debug("fetching element", "kind", kind.String(), "id", id)
	n, err := f.fetch(ctx, kind, id)
	if f.observer != nil {
		f.observer(kind, id, n, err)
	}
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}

	el, ok := f.store.Lookup(kind, id)
	if !ok || el.Missing() {
		return nil, false, nil
	}
	return el, true, nil
}

func (f *Fetcher) fetch(ctx context.Context, kind Kind, id int64) (int, error) {
	rc, err := f.source.Fetch(ctx, kind, id)
	if err != nil {
		return 0, fmt.Errorf("fetching %s %d: %w", kind, id, err)
	}
	defer rc.Close()

	p := NewParser(f.store, f)
	p.SetLogger(f.logger)
	elements, err := p.Parse(ctx, rc)
	if err != nil {
		// Only a ParseError returned directly belongs to this document. One
		// wrapped further down the chain came from a nested fetch, which has
		// already invalidated its own source.
		if _, ok := err.(*ParseError); ok {
			f.logger.Warn("invalidating source that failed to parse",
				"kind", kind.String(),
				"id", id,
				"error", err)
			if invErr := f.source.Invalidate(ctx, kind, id); invErr != nil {
				f.logger.Error("failed to invalidate source", "kind", kind.String(), "id", id, "error", invErr)
			}
		}
		return 0, fmt.Errorf("parsing %s %d: %w", kind, id, err)
	}
	return len(elements), nil
}
