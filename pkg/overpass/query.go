package overpass

import (
	"fmt"
	"strings"

	"github.com/NERVsystems/osmbounds/pkg/osm"
)

// Recursion selects which referenced elements Overpass returns along with
// the queried ones.
type Recursion int

const (
	// RecurseNone returns the element only.
	RecurseNone Recursion = iota
	// RecurseDown returns the element and its direct references (">").
	RecurseDown
	// RecurseDeep returns the element and everything it references,
	// transitively (">>").
	RecurseDeep
)

// QueryBuilder provides a fluent interface for building Overpass queries
// that select elements by id.
type QueryBuilder struct {
	outFormat string
	timeout   int
	elements  []osm.Key
	recursion Recursion
}

// NewQueryBuilder creates a builder producing XML output with the default
// server timeout.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{
		outFormat: "xml",
		timeout:   DefaultQueryTimeout,
	}
}

// WithTimeout sets the server-side query timeout in seconds
func (b *QueryBuilder) WithTimeout(seconds int) *QueryBuilder {
	b.timeout = seconds
	return b
}

// WithElement adds an element to select
func (b *QueryBuilder) WithElement(kind osm.Kind, id int64) *QueryBuilder {
	b.elements = append(b.elements, osm.Key{Kind: kind, ID: id})
	return b
}

// WithRecursion sets the recursion applied to the selected set
func (b *QueryBuilder) WithRecursion(r Recursion) *QueryBuilder {
	b.recursion = r
	return b
}

// Build generates the Overpass query string
func (b *QueryBuilder) Build() string {
	var query strings.Builder

	fmt.Fprintf(&query, "[out:%s][timeout:%d];", b.outFormat, b.timeout)

	if len(b.elements) != 1 {
		query.WriteString("(")
	}
	for _, key := range b.elements {
		fmt.Fprintf(&query, "%s(%d);", key.Kind, key.ID)
	}
	if len(b.elements) != 1 {
		query.WriteString(");")
	}

	switch b.recursion {
	case RecurseDown:
		query.WriteString("(._;>;);")
	case RecurseDeep:
		query.WriteString("(._;>>;);")
	}

	query.WriteString("out body;")
	return query.String()
}

// ElementQuery returns the query for the element-graph document of one
// element: nodes alone, ways with their nodes, relations with everything
// they reference.
func ElementQuery(kind osm.Kind, id int64, timeout int) string {
	b := NewQueryBuilder().WithTimeout(timeout).WithElement(kind, id)
	switch kind {
	case osm.KindWay:
		b.WithRecursion(RecurseDown)
	case osm.KindRelation:
		b.WithRecursion(RecurseDeep)
	}
	return b.Build()
}
