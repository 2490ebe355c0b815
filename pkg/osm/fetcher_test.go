package osm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

// mapSource serves documents from memory and records calls.
type mapSource struct {
	docs        map[Key]string
	fetched     []Key
	invalidated []Key
}

func (s *mapSource) Fetch(_ context.Context, kind Kind, id int64) (io.ReadCloser, error) {
	key := Key{Kind: kind, ID: id}
	s.fetched = append(s.fetched, key)
	doc, ok := s.docs[key]
	if !ok {
		return nil, fmt.Errorf("no document for %s", key)
	}
	return io.NopCloser(strings.NewReader(doc)), nil
}

func (s *mapSource) Invalidate(_ context.Context, kind Kind, id int64) error {
	s.invalidated = append(s.invalidated, Key{Kind: kind, ID: id})
	return nil
}

func TestFetcherResolvesRecursively(t *testing.T) {
	src := &mapSource{docs: map[Key]string{
		{KindRelation, 1}: `<osm>
  <node id="1" lat="0" lon="0"/><node id="2" lat="0" lon="1"/>
  <way id="10"><nd ref="1"/><nd ref="2"/></way>
  <relation id="1">
    <member type="way" ref="10" role="outer"/>
    <member type="relation" ref="2" role="outer"/>
  </relation>
</osm>`,
		{KindRelation, 2}: `<osm>
  <node id="3" lat="1" lon="1"/>
  <way id="20"><nd ref="2"/><nd ref="3"/><nd ref="1"/></way>
  <relation id="2"><member type="way" ref="20" role="outer"/></relation>
</osm>`,
	}}

	store := NewStore()
	f := NewFetcher(store, src)

	el, found, err := f.Resolve(context.Background(), KindRelation, 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !found {
		t.Fatal("relation should be found")
	}
	rel := el.(*Relation)
	if len(src.fetched) != 2 {
		t.Errorf("expected two fetches (relation 1 then 2), got %v", src.fetched)
	}

	rings, err := CloseRings(OuterWays(rel))
	if err != nil {
		t.Fatalf("CloseRings: %v", err)
	}
	if len(rings) != 1 {
		t.Errorf("expected one outer ring, got %d", len(rings))
	}

	// Known elements never trigger another fetch.
	if _, _, err := f.Resolve(context.Background(), KindWay, 20); err != nil {
		t.Fatal(err)
	}
	if len(src.fetched) != 2 {
		t.Errorf("known element was fetched again: %v", src.fetched)
	}
}

func TestFetcherEmptyResultIsNotFound(t *testing.T) {
	src := &mapSource{docs: map[Key]string{
		{KindWay, 5}: `<osm version="0.6"></osm>`,
	}}
	var observed []int
	f := NewFetcher(NewStore(), src)
	f.SetObserver(func(kind Kind, id int64, elements int, err error) {
		observed = append(observed, elements)
	})

	el, found, err := f.Resolve(context.Background(), KindWay, 5)
	if err != nil {
		t.Fatalf("empty result should not be an error: %v", err)
	}
	if found || el != nil {
		t.Errorf("expected not found, got %v", el)
	}
	if len(observed) != 1 || observed[0] != 0 {
		t.Errorf("observer saw %v", observed)
	}
}

func TestFetcherInvalidatesOnParseError(t *testing.T) {
	src := &mapSource{docs: map[Key]string{
		{KindRelation, 1}: `<osm><tag k="a" v="b"/></osm>`,
	}}
	f := NewFetcher(NewStore(), src)

	_, _, err := f.Resolve(context.Background(), KindRelation, 1)
	if !errors.Is(err, ErrUnexpectedOrphan) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if len(src.invalidated) != 1 || src.invalidated[0] != (Key{KindRelation, 1}) {
		t.Errorf("expected relation 1 to be invalidated, got %v", src.invalidated)
	}
}

func TestFetcherTransportErrorIsFatal(t *testing.T) {
	src := &mapSource{docs: map[Key]string{}}
	f := NewFetcher(NewStore(), src)

	if _, _, err := f.Resolve(context.Background(), KindNode, 1); err == nil {
		t.Fatal("expected transport error")
	}
	if len(src.invalidated) != 0 {
		t.Error("transport failures should not invalidate anything")
	}
}

func TestFetcherSkipsMissingMembers(t *testing.T) {
	src := &mapSource{docs: map[Key]string{
		{KindRelation, 1}: `<osm>
  <relation id="1"><member type="way" ref="99" role="outer"/></relation>
</osm>`,
		{KindWay, 99}: `<osm></osm>`,
	}}
	f := NewFetcher(NewStore(), src)

	el, found, err := f.Resolve(context.Background(), KindRelation, 1)
	if err != nil || !found {
		t.Fatalf("Resolve: found=%v err=%v", found, err)
	}
	if n := len(el.(*Relation).Members); n != 0 {
		t.Errorf("member that does not exist should be skipped, relation has %d", n)
	}
}

func TestFetcherNestedParseErrorInvalidatesOnlyItsSource(t *testing.T) {
	src := &mapSource{docs: map[Key]string{
		{KindRelation, 1}: `<osm><relation id="1"><member type="way" ref="7" role="outer"/></relation></osm>`,
		{KindWay, 7}:      `<osm><way id="7"><nd ref="99"/></way></osm>`,
		{KindNode, 99}:    `<osm></osm>`,
	}}
	f := NewFetcher(NewStore(), src)

	_, _, err := f.Resolve(context.Background(), KindRelation, 1)
	if !errors.Is(err, ErrDanglingNodeReference) {
		t.Fatalf("expected ErrDanglingNodeReference, got %v", err)
	}
	if len(src.invalidated) != 1 || src.invalidated[0] != (Key{KindWay, 7}) {
		t.Errorf("only way 7 should be invalidated, got %v", src.invalidated)
	}
}

func TestFetcherForwardSubRelationNotFetched(t *testing.T) {
	// Overpass sorts relations by id, so the parent comes before its child.
	src := &mapSource{docs: map[Key]string{
		{KindRelation, 1}: `<osm>
  <node id="1" lat="0" lon="0"/><node id="2" lat="0" lon="1"/><node id="3" lat="1" lon="1"/>
  <way id="10"><nd ref="1"/><nd ref="2"/><nd ref="3"/><nd ref="1"/></way>
  <relation id="1"><member type="relation" ref="20" role="outer"/></relation>
  <relation id="20"><member type="way" ref="10" role="outer"/></relation>
</osm>`,
	}}
	store := NewStore()
	f := NewFetcher(store, src)

	el, found, err := f.Resolve(context.Background(), KindRelation, 1)
	if err != nil || !found {
		t.Fatalf("Resolve: found=%v err=%v", found, err)
	}
	if len(src.fetched) != 1 {
		t.Errorf("sub-relation in the same document was fetched: %v", src.fetched)
	}
	child, _ := store.Relation(20)
	if got := el.(*Relation).Members[0].Element; got != child {
		t.Error("member should be the stored sub-relation")
	}
	if rings, err := CloseRings(OuterWays(el.(*Relation))); err != nil || len(rings) != 1 {
		t.Errorf("expected one ring, got %d (err %v)", len(rings), err)
	}
}
