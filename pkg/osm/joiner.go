package osm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnclosedBoundaries is matched by *UnclosedBoundariesError.
	ErrUnclosedBoundaries = errors.New("unclosed boundaries")
	// ErrEndpointOccupied means two open ways claimed the same endpoint.
	ErrEndpointOccupied = errors.New("endpoint already indexed")
)

// DanglingEndpoint is an endpoint left open after joining, with the ends of
// the way it belongs to.
type DanglingEndpoint struct {
	Node  *Node
	First *Node
	Last  *Node
}

// UnclosedBoundariesError lists every endpoint that never met a partner.
type UnclosedBoundariesError struct {
	Dangling []DanglingEndpoint
}

func (e *UnclosedBoundariesError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d unclosed endpoint(s):", len(e.Dangling))
	for _, d := range e.Dangling {
		fmt.Fprintf(&b, "\n  %s: way runs from %s to %s", d.Node, d.First, d.Last)
	}
	return b.String()
}

func (e *UnclosedBoundariesError) Unwrap() error {
	return ErrUnclosedBoundaries
}

// endpointIndex maps a node id to the open way ending there. Every way is
// indexed under both of its endpoints.
type endpointIndex map[int64]*Way

func (idx endpointIndex) insert(w *Way) error {
	first, last := w.First().ID, w.Last().ID
	if other, ok := idx[first]; ok {
		return fmt.Errorf("%w: node %d held by %s", ErrEndpointOccupied, first, other.describe())
	}
	if other, ok := idx[last]; ok {
		return fmt.Errorf("%w: node %d held by %s", ErrEndpointOccupied, last, other.describe())
	}
	idx[first] = w
	idx[last] = w
	return nil
}

func (idx endpointIndex) remove(w *Way) {
	delete(idx, w.First().ID)
	delete(idx, w.Last().ID)
}

// matches returns the distinct indexed ways sharing an endpoint with w.
func (idx endpointIndex) matches(w *Way) []*Way {
	var out []*Way
	if m, ok := idx[w.First().ID]; ok {
		out = append(out, m)
	}
	if m, ok := idx[w.Last().ID]; ok && (len(out) == 0 || out[0] != m) {
		out = append(out, m)
	}
	return out
}

// CloseRings stitches ways at shared endpoints into closed rings. Endpoints
// match by node identity only. Ways that are already closed pass through
// unchanged and empty ways are ignored. If any way is left open the error is
// an *UnclosedBoundariesError.
func CloseRings(ways []*Way) ([]*Way, error) {
	idx := endpointIndex{}
	var rings []*Way

	for _, w := range ways {
		if len(w.Nodes) == 0 {
			continue
		}
		if w.Closed() {
			rings = append(rings, w)
			continue
		}

		found := idx.matches(w)
		if len(found) == 0 {
			if err := idx.insert(w); err != nil {
				return nil, err
			}
			continue
		}

		acc := w
		closed := false
		for _, m := range found {
			idx.remove(m)
			joined, err := acc.Join(m)
			if err != nil {
				return nil, fmt.Errorf("joining %s: %w", acc.describe(), err)
			}
			acc = joined
			if acc.Closed() {
				rings = append(rings, acc)
				closed = true
				break
			}
		}
		if !closed {
			if err := idx.insert(acc); err != nil {
				return nil, err
			}
		}
	}

	if len(idx) > 0 {
		return nil, unclosed(idx)
	}
	return rings, nil
}

func unclosed(idx endpointIndex) *UnclosedBoundariesError {
	ids := make([]int64, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	err := &UnclosedBoundariesError{Dangling: make([]DanglingEndpoint, 0, len(ids))}
	for _, id := range ids {
		w := idx[id]
		node := w.First()
		if node.ID != id {
			node = w.Last()
		}
		err.Dangling = append(err.Dangling, DanglingEndpoint{Node: node, First: w.First(), Last: w.Last()})
	}
	return err
}
