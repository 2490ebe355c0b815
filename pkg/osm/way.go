package osm

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrJoinOnClosedWay is returned when either side of a join is a closed ring.
	ErrJoinOnClosedWay = errors.New("cannot join a closed way")
	// ErrNoSharedEndpoint is returned when two ways have no endpoint in common.
	ErrNoSharedEndpoint = errors.New("ways share no endpoint")
)

// Way is an ordered node sequence. ID is zero for ways synthesized by Join.
type Way struct {
	ID    int64
	Nodes []*Node
	Tags  Tags

	missing bool
}

// NewWay returns a way over the given nodes.
func NewWay(id int64, nodes ...*Node) *Way {
	return &Way{ID: id, Nodes: nodes, Tags: Tags{}}
}

func (w *Way) Key() Key      { return Key{Kind: KindWay, ID: w.ID} }
func (w *Way) Missing() bool { return w.missing }
func (w *Way) TagMap() Tags  { return w.Tags }
func (w *Way) element()      {}

// First returns the first node, or nil for an empty way.
func (w *Way) First() *Node {
	if len(w.Nodes) == 0 {
		return nil
	}
	return w.Nodes[0]
}

// Last returns the last node, or nil for an empty way.
func (w *Way) Last() *Node {
	if len(w.Nodes) == 0 {
		return nil
	}
	return w.Nodes[len(w.Nodes)-1]
}

// Closed reports whether the way is a ring.
func (w *Way) Closed() bool {
	if len(w.Nodes) == 0 {
		return false
	}
	return sameNode(w.First(), w.Last())
}

// Join concatenates two open ways at a shared endpoint. The junction node
// appears once in the result, which carries neither id nor tags.
func (w *Way) Join(other *Way) (*Way, error) {
	if w.Closed() || other.Closed() {
		return nil, ErrJoinOnClosedWay
	}
	if len(w.Nodes) == 0 || len(other.Nodes) == 0 {
		return nil, ErrNoSharedEndpoint
	}

	var nodes []*Node
	switch {
	case sameNode(w.First(), other.First()):
		nodes = append(reversed(other.Nodes[1:]), w.Nodes...)
	case sameNode(w.First(), other.Last()):
		nodes = append(slices.Clone(other.Nodes[:len(other.Nodes)-1]), w.Nodes...)
	case sameNode(w.Last(), other.First()):
		nodes = append(slices.Clone(w.Nodes[:len(w.Nodes)-1]), other.Nodes...)
	case sameNode(w.Last(), other.Last()):
		nodes = append(slices.Clone(w.Nodes[:len(w.Nodes)-1]), reversed(other.Nodes)...)
	default:
		return nil, fmt.Errorf("%w: %s and %s", ErrNoSharedEndpoint, w.describe(), other.describe())
	}
	return &Way{Nodes: nodes}, nil
}

// String lists the node ids of the way.
func (w *Way) String() string {
	ids := make([]string, len(w.Nodes))
	for i, n := range w.Nodes {
		ids[i] = fmt.Sprint(n.ID)
	}
	if w.ID == 0 {
		return fmt.Sprintf("way [%s]", strings.Join(ids, " "))
	}
	return fmt.Sprintf("way %d [%s]", w.ID, strings.Join(ids, " "))
}

func (w *Way) describe() string {
	if w.ID != 0 {
		return fmt.Sprintf("way %d", w.ID)
	}
	if len(w.Nodes) == 0 {
		return "empty way"
	}
	return fmt.Sprintf("joined way %d..%d", w.First().ID, w.Last().ID)
}

// reversed returns a reversed copy of nodes.
func reversed(nodes []*Node) []*Node {
	out := slices.Clone(nodes)
	slices.Reverse(out)
	return out
}

func sameNode(a, b *Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID == b.ID
}
