package osm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const squareXML = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="Overpass API">
  <note>The data included in this document is from www.openstreetmap.org.</note>
  <meta osm_base="2024-01-01T00:00:00Z"/>
  <node id="1" lat="0.0" lon="0.0"/>
  <node id="2" lat="0.0" lon="1.0"/>
  <node id="3" lat="1.0" lon="1.0"/>
  <node id="4" lat="1.0" lon="0.0">
    <tag k="place" v="hamlet"/>
  </node>
  <way id="10">
    <nd ref="1"/>
    <nd ref="2"/>
    <nd ref="3"/>
  </way>
  <way id="11">
    <nd ref="3"/>
    <nd ref="4"/>
    <nd ref="1"/>
    <tag k="boundary" v="administrative"/>
  </way>
  <relation id="100">
    <member type="way" ref="10" role="outer"/>
    <member type="way" ref="11" role=""/>
    <member type="node" ref="4" role="admin_centre"/>
    <member type="relation" ref="200" role="subarea"/>
    <tag k="name" v="Square"/>
    <tag k="admin_level" v="8"/>
  </relation>
</osm>`

func TestParseDocument(t *testing.T) {
	store := NewStore()
	elements, err := Parse(context.Background(), strings.NewReader(squareXML), store, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(elements) != 7 {
		t.Fatalf("expected 7 top-level elements, got %d", len(elements))
	}
	if elements[6].Key() != (Key{Kind: KindRelation, ID: 100}) {
		t.Errorf("elements should be in document order, last is %v", elements[6].Key())
	}

	n, w, r := store.Len()
	if n != 4 || w != 2 || r != 1 {
		t.Errorf("store holds %d nodes, %d ways, %d relations", n, w, r)
	}

	node, _ := store.Node(4)
	if !node.Located || node.Lat != 1.0 || node.Tags["place"] != "hamlet" {
		t.Errorf("unexpected node 4: %+v", node)
	}

	way, _ := store.Way(11)
	if got := ids(way); len(got) != 3 || got[0] != 3 || got[2] != 1 {
		t.Errorf("way 11 nodes = %v", got)
	}
	if way.Tags["boundary"] != "administrative" {
		t.Errorf("way 11 tags = %v", way.Tags)
	}
	first, _ := store.Node(1)
	if way.Last() != first {
		t.Error("way nodes should be the registered node instances")
	}

	rel, _ := store.Relation(100)
	if rel.Tags["name"] != "Square" {
		t.Errorf("relation tags = %v", rel.Tags)
	}
	if len(rel.Members) != 3 {
		t.Fatalf("expected 3 members (subarea skipped), got %d", len(rel.Members))
	}
	if rel.Members[1].Role != "" || rel.Members[2].Role != "admin_centre" {
		t.Errorf("unexpected roles %+v", rel.Members)
	}
}

func TestParseStructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
		wantTag string
	}{
		{
			name:    "nested top-level",
			doc:     `<osm><way id="1"><node id="2" lat="0" lon="0"/></way></osm>`,
			wantErr: ErrUnexpectedNesting,
			wantTag: "node",
		},
		{
			name:    "orphan tag",
			doc:     `<osm><tag k="a" v="b"/></osm>`,
			wantErr: ErrUnexpectedOrphan,
			wantTag: "tag",
		},
		{
			name:    "orphan nd",
			doc:     `<osm><nd ref="1"/></osm>`,
			wantErr: ErrUnexpectedOrphan,
			wantTag: "nd",
		},
		{
			name:    "member under way",
			doc:     `<osm><way id="1"><member type="node" ref="1" role=""/></way></osm>`,
			wantErr: ErrWrongParent,
			wantTag: "member",
		},
		{
			name:    "nd under relation",
			doc:     `<osm><relation id="1"><nd ref="1"/></relation></osm>`,
			wantErr: ErrWrongParent,
			wantTag: "nd",
		},
		{
			name:    "nd under node",
			doc:     `<osm><node id="1" lat="0" lon="0"><nd ref="1"/></node></osm>`,
			wantErr: ErrWrongParent,
			wantTag: "nd",
		},
		{
			name:    "unknown member type",
			doc:     `<osm><relation id="1"><member type="area" ref="1" role=""/></relation></osm>`,
			wantErr: ErrUnknownElementKind,
			wantTag: "member",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), strings.NewReader(tt.doc), NewStore(), nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Tag != tt.wantTag {
				t.Errorf("ParseError.Tag = %q, want %q", pe.Tag, tt.wantTag)
			}
		})
	}
}

func TestParseMalformedXML(t *testing.T) {
	_, err := Parse(context.Background(), strings.NewReader(`<osm><way id="1">`), NewStore(), nil)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError for truncated input, got %v", err)
	}
}

func TestParseCacheOnlyPlaceholders(t *testing.T) {
	doc := `<osm>
  <way id="10"><nd ref="1"/><nd ref="2"/></way>
  <relation id="5">
    <member type="way" ref="10" role="outer"/>
    <member type="way" ref="11" role="outer"/>
  </relation>
</osm>`

	store := NewStore()
	if _, err := Parse(context.Background(), strings.NewReader(doc), store, store); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	way, _ := store.Way(10)
	if len(way.Nodes) != 2 || !way.Nodes[0].Missing() {
		t.Fatalf("way should reference content-missing nodes, got %+v", way.Nodes)
	}

	rel, _ := store.Relation(5)
	if len(rel.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(rel.Members))
	}
	if !rel.Members[1].Element.Missing() {
		t.Error("unknown way should be a content-missing placeholder")
	}
	if got := OuterWays(rel); len(got) != 1 || got[0].ID != 10 {
		t.Errorf("content-missing members should not be selected, got %v", got)
	}
}

func TestParseFillsPlaceholderInPlace(t *testing.T) {
	doc := `<osm>
  <relation id="1"><member type="relation" ref="2" role="outer"/></relation>
  <relation id="2"><member type="way" ref="10" role="outer"/></relation>
  <way id="10"><nd ref="1"/><nd ref="2"/><nd ref="1"/></way>
  <node id="1" lat="0" lon="0"/>
  <node id="2" lat="0" lon="1"/>
</osm>`

	store := NewStore()
	if _, err := Parse(context.Background(), strings.NewReader(doc), store, nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	parent, _ := store.Relation(1)
	child := parent.Members[0].Element.(*Relation)
	if child.Missing() {
		t.Fatal("forward reference should resolve to the parsed relation")
	}
	got := OuterWays(parent)
	if len(got) != 1 || len(got[0].Nodes) != 3 {
		t.Fatalf("expected the nested way with its nodes, got %v", got)
	}
	n, _ := store.Node(2)
	if got[0].Nodes[1] != n || n.Missing() || n.Lon != 1 {
		t.Errorf("node placeholder should be filled in place, got %+v", got[0].Nodes[1])
	}
}

func TestParseRepeatKeepsFirstDefinition(t *testing.T) {
	store := NewStore()
	first := `<osm>
  <node id="1" lat="0" lon="0"/><node id="2" lat="0" lon="1"/>
  <way id="10"><nd ref="1"/><nd ref="2"/><tag k="name" v="first"/></way>
</osm>`
	if _, err := Parse(context.Background(), strings.NewReader(first), store, nil); err != nil {
		t.Fatalf("Parse first: %v", err)
	}
	way, _ := store.Way(10)

	// The repeat references a node nobody knows; it must not be resolved.
	repeat := `<osm><way id="10"><nd ref="1"/><nd ref="99"/><tag k="name" v="second"/></way></osm>`
	elements, err := Parse(context.Background(), strings.NewReader(repeat), store, notFoundResolver{})
	if err != nil {
		t.Fatalf("Parse repeat: %v", err)
	}

	if again, _ := store.Way(10); again != way {
		t.Fatal("store entry was replaced by the repeated definition")
	}
	if len(elements) != 1 || elements[0] != way {
		t.Errorf("repeat should report the stored way, got %v", elements)
	}
	if len(way.Nodes) != 2 || way.Tags["name"] != "first" {
		t.Errorf("stored way changed: nodes %d, tags %v", len(way.Nodes), way.Tags)
	}
}

func TestParseRuntimeRemark(t *testing.T) {
	doc := `<osm version="0.6" generator="Overpass API">
<meta osm_base="2026-10-01T00:00:00Z"/>
<remark> runtime error: Query timed out in "recurse" at line 1 after 181 seconds. </remark>
</osm>`
	_, err := Parse(context.Background(), strings.NewReader(doc), NewStore(), nil)
	if !errors.Is(err, ErrRuntimeRemark) {
		t.Fatalf("expected ErrRuntimeRemark, got %v", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Tag != "remark" {
		t.Errorf("expected ParseError at <remark>, got %v", err)
	}

	informational := `<osm><remark>runtime remark: Timeout is 180.</remark><node id="1" lat="0" lon="0"/></osm>`
	elements, err := Parse(context.Background(), strings.NewReader(informational), NewStore(), nil)
	if err != nil || len(elements) != 1 {
		t.Errorf("informational remark should be ignored: %d elements, err %v", len(elements), err)
	}
}

type notFoundResolver struct{}

func (notFoundResolver) Resolve(context.Context, Kind, int64) (Element, bool, error) {
	return nil, false, nil
}

func TestParseDanglingNodeReference(t *testing.T) {
	doc := `<osm><way id="10"><nd ref="1"/></way></osm>`
	_, err := Parse(context.Background(), strings.NewReader(doc), NewStore(), notFoundResolver{})
	if !errors.Is(err, ErrDanglingNodeReference) {
		t.Fatalf("expected ErrDanglingNodeReference, got %v", err)
	}
}

func TestParseSkipsMembersNotFound(t *testing.T) {
	doc := `<osm><relation id="1"><member type="way" ref="10" role="outer"/><tag k="name" v="x"/></relation></osm>`
	store := NewStore()
	elements, err := Parse(context.Background(), strings.NewReader(doc), store, notFoundResolver{})
	if err != nil {
		t.Fatalf("missing members should not be fatal: %v", err)
	}
	rel := elements[0].(*Relation)
	if len(rel.Members) != 0 {
		t.Errorf("member that was not found should be skipped, got %v", rel.Members)
	}
	if rel.Tags["name"] != "x" {
		t.Error("parsing should continue after a skipped member")
	}
}
