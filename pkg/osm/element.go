// Package osm provides the OpenStreetMap element model and the pipeline that
// assembles relation boundaries into closed rings.
package osm

import (
	"errors"
	"fmt"
)

// Kind identifies one of the three OSM element namespaces.
type Kind uint8

const (
	KindNode Kind = iota + 1
	KindWay
	KindRelation
)

// ErrUnknownElementKind is matched by errors returned for unrecognised kinds.
var ErrUnknownElementKind = errors.New("unknown element kind")

// UnknownKindError reports a kind name or value outside node/way/relation.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown element kind %q", e.Kind)
}

func (e *UnknownKindError) Unwrap() error {
	return ErrUnknownElementKind
}

// ParseKind maps an XML tag or Overpass type name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "node":
		return KindNode, nil
	case "way":
		return KindWay, nil
	case "relation":
		return KindRelation, nil
	}
	return 0, &UnknownKindError{Kind: s}
}

// String returns the OSM name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindWay:
		return "way"
	case KindRelation:
		return "relation"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	return k >= KindNode && k <= KindRelation
}

// Key is the identity of an element. Ids are only unique within a kind.
type Key struct {
	Kind Kind
	ID   int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.ID)
}

// Tags maps tag keys to values.
type Tags map[string]string

// Element is implemented by *Node, *Way and *Relation only.
type Element interface {
	Key() Key
	Missing() bool
	TagMap() Tags

	element()
}

// Equal reports whether a and b are the same kind and id. Content, including
// whether either side is a content-missing placeholder, is not compared.
func Equal(a, b Element) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Key() == b.Key()
}

// NewPlaceholder returns a content-missing element of the given kind.
func NewPlaceholder(kind Kind, id int64) (Element, error) {
	switch kind {
	case KindNode:
		return &Node{ID: id, missing: true}, nil
	case KindWay:
		return &Way{ID: id, missing: true}, nil
	case KindRelation:
		return &Relation{ID: id, missing: true}, nil
	}
	return nil, &UnknownKindError{Kind: kind.String()}
}

// Node is a point element. Lat and Lon are meaningful only when Located.
type Node struct {
	ID      int64
	Lat     float64
	Lon     float64
	Located bool
	Tags    Tags

	missing bool
}

// NewNode returns a located node.
func NewNode(id int64, lat, lon float64) *Node {
	return &Node{ID: id, Lat: lat, Lon: lon, Located: true, Tags: Tags{}}
}

func (n *Node) Key() Key      { return Key{Kind: KindNode, ID: n.ID} }
func (n *Node) Missing() bool { return n.missing }
func (n *Node) TagMap() Tags  { return n.Tags }
func (n *Node) element()      {}

func (n *Node) String() string {
	if n.Located {
		return fmt.Sprintf("node %d (%.7f, %.7f)", n.ID, n.Lat, n.Lon)
	}
	return fmt.Sprintf("node %d", n.ID)
}

// Member is a relation child with its role.
type Member struct {
	Element Element
	Role    string
}

// Relation is an ordered collection of members. Member order follows the
// source document.
type Relation struct {
	ID      int64
	Members []Member
	Tags    Tags

	missing bool
}

// NewRelation returns an empty relation.
func NewRelation(id int64) *Relation {
	return &Relation{ID: id, Tags: Tags{}}
}

func (r *Relation) Key() Key      { return Key{Kind: KindRelation, ID: r.ID} }
func (r *Relation) Missing() bool { return r.missing }
func (r *Relation) TagMap() Tags  { return r.Tags }
func (r *Relation) element()      {}

// Add appends a member.
func (r *Relation) Add(el Element, role string) {
	r.Members = append(r.Members, Member{Element: el, Role: role})
}

func (r *Relation) String() string {
	if name := r.Tags["name"]; name != "" {
		return fmt.Sprintf("relation %d (%s)", r.ID, name)
	}
	return fmt.Sprintf("relation %d", r.ID)
}
