// Package boundary assembles administrative boundaries from OSM relations:
// it resolves the relation's element graph, selects the outer and inner
// member ways and joins each set into closed rings.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmbounds/pkg/monitoring"
	"github.com/NERVsystems/osmbounds/pkg/osm"
	"github.com/NERVsystems/osmbounds/pkg/tracing"
)

// ErrRelationNotFound is returned when the requested relation does not exist
// in the source.
var ErrRelationNotFound = errors.New("relation not found")

// Boundary is the closed-ring result for one relation. Every way in Outer
// and Inner is closed.
type Boundary struct {
	RelationID int64
	Name       string
	AdminLevel string
	Tags       osm.Tags
	Outer      []*osm.Way
	Inner      []*osm.Way
}

// Sink stores assembled boundaries.
type Sink interface {
	SaveBoundary(ctx context.Context, b *Boundary) error
}

// FromRelation selects and joins the rings of an already resolved relation.
// Outer rings are joined first; an unclosed outer set is reported without
// looking at the inner ways.
func FromRelation(rel *osm.Relation) (*Boundary, error) {
	outer, err := osm.CloseRings(osm.OuterWays(rel))
	if err != nil {
		return nil, fmt.Errorf("outer rings of relation %d: %w", rel.ID, err)
	}
	inner, err := osm.CloseRings(osm.InnerWays(rel))
	if err != nil {
		return nil, fmt.Errorf("inner rings of relation %d: %w", rel.ID, err)
	}
	return &Boundary{
		RelationID: rel.ID,
		Name:       rel.Tags["name"],
		AdminLevel: rel.Tags["admin_level"],
		Tags:       rel.Tags,
		Outer:      outer,
		Inner:      inner,
	}, nil
}

// Assembler produces boundaries from a Source. Each call works on its own
// element store, so an Assembler is safe for concurrent use when its Source
// is.
type Assembler struct {
	source osm.Source
	sinks  []Sink
	logger *slog.Logger
}

// Option configures an Assembler
type Option func(*Assembler)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) { a.logger = logger }
}

// WithSink adds a sink that receives every successfully assembled boundary.
func WithSink(s Sink) Option {
	return func(a *Assembler) { a.sinks = append(a.sinks, s) }
}

// NewAssembler returns an assembler fetching from source.
func NewAssembler(source osm.Source, opts ...Option) *Assembler {
	a := &Assembler{
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble fetches relation id with everything it references and returns
// its rings.
func (a *Assembler) Assemble(ctx context.Context, id int64) (*Boundary, error) {
	ctx, span := tracing.StartSpan(ctx, "boundary.assemble",
		trace.WithAttributes(attribute.Int64(tracing.AttrRelationID, id)),
	)
	defer span.End()
	start := time.Now()

	f := osm.NewFetcher(osm.NewStore(), a.source)
	f.SetLogger(a.logger)
	f.SetObserver(func(kind osm.Kind, id int64, elements int, err error) {
		monitoring.RecordFetch(kind.String(), elements, err)
		tracing.AddEvent(ctx, "fetch", trace.WithAttributes(
			append(tracing.ElementAttributes(kind.String(), id),
				attribute.Int(tracing.AttrElementsOut, elements))...,
		))
	})

	el, found, err := f.Resolve(ctx, osm.KindRelation, id)
	nodes, ways, relations := f.Store().Len()
	a.logger.Debug("resolved element graph",
		"relation", id,
		"nodes", nodes,
		"ways", ways,
		"relations", relations)

	return a.finish(ctx, span, start, id, el, found, err)
}

// AssembleFile reads a complete element-graph document and assembles
// relation id from it without fetching. References the document does not
// define are treated as missing.
func (a *Assembler) AssembleFile(ctx context.Context, r io.Reader, id int64) (*Boundary, error) {
	ctx, span := tracing.StartSpan(ctx, "boundary.assemble_file",
		trace.WithAttributes(attribute.Int64(tracing.AttrRelationID, id)),
	)
	defer span.End()
	start := time.Now()

	store := osm.NewStore()
	p := osm.NewParser(store, nil)
	p.SetLogger(a.logger)
	if _, err := p.Parse(ctx, r); err != nil {
		return a.finish(ctx, span, start, id, nil, false, err)
	}

	el, found := store.Lookup(osm.KindRelation, id)
	found = found && !el.Missing()
	return a.finish(ctx, span, start, id, el, found, nil)
}

func (a *Assembler) finish(ctx context.Context, span trace.Span, start time.Time, id int64, el osm.Element, found bool, err error) (*Boundary, error) {
	var b *Boundary
	if err == nil && !found {
		err = fmt.Errorf("relation %d: %w", id, ErrRelationNotFound)
	}
	if err == nil {
		b, err = FromRelation(el.(*osm.Relation))
	}
	if err == nil {
		err = a.save(ctx, b)
	}

	outcome := outcomeOf(err)
	if err != nil {
		monitoring.RecordAssembly(outcome, time.Since(start), 0, 0)
		span.SetAttributes(tracing.ErrorAttributes(err)...)
		tracing.Finish(span, err, outcome)
		a.logger.Error("boundary assembly failed", "relation", id, "outcome", outcome, "error", err)
		return nil, err
	}

	monitoring.RecordAssembly(outcome, time.Since(start), len(b.Outer), len(b.Inner))
	span.SetAttributes(attribute.String(tracing.AttrRelationName, b.Name))
	span.SetAttributes(tracing.RingAttributes(0, 0, len(b.Outer), len(b.Inner))...)
	tracing.Finish(span, nil, "")
	a.logger.Info("assembled boundary",
		"relation", id,
		"name", b.Name,
		"outer_rings", len(b.Outer),
		"inner_rings", len(b.Inner),
		"duration", time.Since(start))
	return b, nil
}

func (a *Assembler) save(ctx context.Context, b *Boundary) error {
	for _, s := range a.sinks {
		if err := s.SaveBoundary(ctx, b); err != nil {
			return fmt.Errorf("saving boundary %d: %w", b.RelationID, err)
		}
	}
	return nil
}

func outcomeOf(err error) string {
	var unclosed *osm.UnclosedBoundariesError
	switch {
	case err == nil:
		return monitoring.OutcomeSuccess
	case errors.Is(err, ErrRelationNotFound):
		return monitoring.OutcomeNotFound
	case errors.As(err, &unclosed):
		monitoring.RecordUnclosedEndpoints(len(unclosed.Dangling))
		return monitoring.OutcomeUnclosed
	default:
		return monitoring.OutcomeError
	}
}
