package boundary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/NERVsystems/osmbounds/pkg/osm"
)

// Two outer ways around a square with a triangular hole split in two, plus
// a subarea that must be ignored.
const squareWithHole = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <node id="1" lat="0" lon="0"/>
  <node id="2" lat="0" lon="10"/>
  <node id="3" lat="10" lon="10"/>
  <node id="4" lat="10" lon="0"/>
  <node id="11" lat="2" lon="2"/>
  <node id="12" lat="2" lon="4"/>
  <node id="13" lat="4" lon="3"/>
  <way id="100"><nd ref="1"/><nd ref="2"/><nd ref="3"/></way>
  <way id="101"><nd ref="1"/><nd ref="4"/><nd ref="3"/></way>
  <way id="200"><nd ref="11"/><nd ref="12"/></way>
  <way id="201"><nd ref="13"/><nd ref="12"/></way>
  <way id="202"><nd ref="13"/><nd ref="11"/></way>
  <relation id="9">
    <member type="way" ref="100" role="outer"/>
    <member type="way" ref="200" role="inner"/>
    <member type="way" ref="101" role="outer"/>
    <member type="way" ref="201" role="inner"/>
    <member type="way" ref="202" role="inner"/>
    <member type="relation" ref="77" role="subarea"/>
    <member type="node" ref="11" role="admin_centre"/>
    <tag k="name" v="Squareland"/>
    <tag k="admin_level" v="4"/>
    <tag k="boundary" v="administrative"/>
  </relation>
</osm>`

// docSource serves one document for relation 9 only.
type docSource struct {
	doc     string
	fetched int
}

func (s *docSource) Fetch(_ context.Context, kind osm.Kind, id int64) (io.ReadCloser, error) {
	s.fetched++
	if kind == osm.KindRelation && id == 9 {
		return io.NopCloser(strings.NewReader(s.doc)), nil
	}
	return io.NopCloser(strings.NewReader(`<osm/>`)), nil
}

func (s *docSource) Invalidate(context.Context, osm.Kind, int64) error { return nil }

type recordingSink struct {
	saved []*Boundary
	err   error
}

func (s *recordingSink) SaveBoundary(_ context.Context, b *Boundary) error {
	s.saved = append(s.saved, b)
	return s.err
}

func TestAssemble(t *testing.T) {
	src := &docSource{doc: squareWithHole}
	sink := &recordingSink{}
	a := NewAssembler(src, WithSink(sink))

	b, err := a.Assemble(context.Background(), 9)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if b.RelationID != 9 || b.Name != "Squareland" || b.AdminLevel != "4" {
		t.Errorf("unexpected boundary header %+v", b)
	}
	if len(b.Outer) != 1 || len(b.Inner) != 1 {
		t.Fatalf("expected 1 outer and 1 inner ring, got %d and %d", len(b.Outer), len(b.Inner))
	}
	for _, r := range append(b.Outer, b.Inner...) {
		if !r.Closed() {
			t.Errorf("ring %s is not closed", r)
		}
	}
	if n := len(b.Outer[0].Nodes); n != 5 {
		t.Errorf("outer ring should have 5 nodes, got %d", n)
	}
	if len(sink.saved) != 1 || sink.saved[0] != b {
		t.Errorf("sink should receive the boundary, got %v", sink.saved)
	}
	if src.fetched != 1 {
		t.Errorf("the recursive document should satisfy every reference, got %d fetches", src.fetched)
	}
}

func TestAssembleFileMatchesFetched(t *testing.T) {
	a := NewAssembler(nil)

	b, err := a.AssembleFile(context.Background(), strings.NewReader(squareWithHole), 9)
	if err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	if len(b.Outer) != 1 || len(b.Inner) != 1 {
		t.Errorf("expected 1 outer and 1 inner ring, got %d and %d", len(b.Outer), len(b.Inner))
	}
}

func TestAssembleNotFound(t *testing.T) {
	a := NewAssembler(&docSource{doc: squareWithHole})

	_, err := a.Assemble(context.Background(), 1234)
	if !errors.Is(err, ErrRelationNotFound) {
		t.Errorf("expected ErrRelationNotFound, got %v", err)
	}

	_, err = a.AssembleFile(context.Background(), strings.NewReader(squareWithHole), 1234)
	if !errors.Is(err, ErrRelationNotFound) {
		t.Errorf("offline: expected ErrRelationNotFound, got %v", err)
	}
}

func TestAssembleFileMissingWay(t *testing.T) {
	// Way 101 is referenced but not defined: the outer set cannot close.
	doc := strings.Replace(squareWithHole,
		`<way id="101"><nd ref="1"/><nd ref="4"/><nd ref="3"/></way>`, "", 1)

	_, err := NewAssembler(nil).AssembleFile(context.Background(), strings.NewReader(doc), 9)

	var unclosed *osm.UnclosedBoundariesError
	if !errors.As(err, &unclosed) {
		t.Fatalf("expected unclosed boundaries, got %v", err)
	}
	got := map[int64]bool{}
	for _, d := range unclosed.Dangling {
		got[d.Node.ID] = true
	}
	if !got[1] || !got[3] {
		t.Errorf("report should name nodes 1 and 3, got %v", unclosed.Dangling)
	}
}

func TestAssembleParseError(t *testing.T) {
	_, err := NewAssembler(nil).AssembleFile(context.Background(), strings.NewReader(`<osm><nd ref="1"/></osm>`), 9)
	var pe *osm.ParseError
	if !errors.As(err, &pe) {
		t.Errorf("expected ParseError, got %v", err)
	}
}

func TestAssembleSinkError(t *testing.T) {
	sink := &recordingSink{err: fmt.Errorf("database unavailable")}
	a := NewAssembler(&docSource{doc: squareWithHole}, WithSink(sink))

	if _, err := a.Assemble(context.Background(), 9); err == nil {
		t.Error("sink failure should fail the assembly")
	}
}

func TestFromRelationNestedIslands(t *testing.T) {
	pool := map[int64]*osm.Node{}
	node := func(id int64) *osm.Node {
		if n, ok := pool[id]; ok {
			return n
		}
		n := osm.NewNode(id, float64(id), float64(id))
		pool[id] = n
		return n
	}
	way := func(id int64, ids ...int64) *osm.Way {
		ns := make([]*osm.Node, len(ids))
		for i, nid := range ids {
			ns[i] = node(nid)
		}
		return osm.NewWay(id, ns...)
	}

	island := osm.NewRelation(2)
	island.Add(way(20, 10, 11, 12), "outer")
	island.Add(way(21, 12, 10), "outer")

	rel := osm.NewRelation(1)
	rel.Add(way(10, 1, 2, 3, 1), "outer")
	rel.Add(island, "outer")

	b, err := FromRelation(rel)
	if err != nil {
		t.Fatalf("FromRelation: %v", err)
	}
	if len(b.Outer) != 2 {
		t.Errorf("expected mainland and island rings, got %d", len(b.Outer))
	}
	if len(b.Inner) != 0 {
		t.Errorf("expected no inner rings, got %d", len(b.Inner))
	}
}
