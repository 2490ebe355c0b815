package osm

import "context"

// Resolver resolves a reference to an element by kind and id. A false result
// with a nil error means the element does not exist; errors are fatal.
type Resolver interface {
	Resolve(ctx context.Context, kind Kind, id int64) (Element, bool, error)
}

// Store holds the elements known to one parse session, keyed by kind and id.
// Entries are never removed. A Store is not safe for concurrent use.
type Store struct {
	nodes     map[int64]*Node
	ways      map[int64]*Way
	relations map[int64]*Relation
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		nodes:     make(map[int64]*Node),
		ways:      make(map[int64]*Way),
		relations: make(map[int64]*Relation),
	}
}

// Lookup returns the element registered under kind and id.
func (s *Store) Lookup(kind Kind, id int64) (Element, bool) {
	switch kind {
	case KindNode:
		if n, ok := s.nodes[id]; ok {
			return n, true
		}
	case KindWay:
		if w, ok := s.ways[id]; ok {
			return w, true
		}
	case KindRelation:
		if r, ok := s.relations[id]; ok {
			return r, true
		}
	}
	return nil, false
}

// Node returns the node with the given id.
func (s *Store) Node(id int64) (*Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Way returns the way with the given id.
func (s *Store) Way(id int64) (*Way, bool) {
	w, ok := s.ways[id]
	return w, ok
}

// Relation returns the relation with the given id.
func (s *Store) Relation(id int64) (*Relation, bool) {
	r, ok := s.relations[id]
	return r, ok
}

// Register records el under its key, replacing any earlier entry.
func (s *Store) Register(el Element) {
	switch e := el.(type) {
	case *Node:
		s.nodes[e.ID] = e
	case *Way:
		s.ways[e.ID] = e
	case *Relation:
		s.relations[e.ID] = e
	}
}

// Len returns the number of registered elements of each kind.
func (s *Store) Len() (nodes, ways, relations int) {
	return len(s.nodes), len(s.ways), len(s.relations)
}

// Resolve implements the cache-only policy: unknown elements become
// registered content-missing placeholders. It never reports not found.
func (s *Store) Resolve(_ context.Context, kind Kind, id int64) (Element, bool, error) {
	if el, ok := s.Lookup(kind, id); ok {
		return el, true, nil
	}
	el, err := NewPlaceholder(kind, id)
	if err != nil {
		return nil, false, err
	}
	s.Register(el)
	return el, true, nil
}
