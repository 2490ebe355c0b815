package osm

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

var (
	ErrUnexpectedNesting     = errors.New("top-level element opened inside another")
	ErrUnexpectedOrphan      = errors.New("sub-element outside a top-level element")
	ErrWrongParent           = errors.New("sub-element under the wrong parent")
	ErrDanglingNodeReference = errors.New("way references an unresolvable node")
	ErrRuntimeRemark         = errors.New("document reports a server runtime error")
)

// DefaultIgnoredRoles are relation member roles skipped while parsing and
// selecting ways.
var DefaultIgnoredRoles = []string{"subarea"}

// ParseError reports malformed or out-of-order input. Tag names the
// offending XML element and Line its position in the stream.
type ParseError struct {
	Tag  string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at <%s> (line %d): %v", e.Tag, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser builds elements from an Overpass-style XML stream. References it
// cannot satisfy from the document go through the Resolver.
type Parser struct {
	store    *Store
	resolver Resolver
	ignored  map[string]bool
	logger   *slog.Logger
}

// NewParser returns a parser registering into store. A nil resolver uses the
// store itself, which never fetches.
func NewParser(store *Store, resolver Resolver) *Parser {
	if resolver == nil {
		resolver = store
	}
	p := &Parser{
		store:    store,
		resolver: resolver,
		ignored:  make(map[string]bool),
		logger:   slog.Default(),
	}
	for _, role := range DefaultIgnoredRoles {
		p.ignored[role] = true
	}
	return p
}

// SetLogger sets the logger used for skipped members.
func (p *Parser) SetLogger(logger *slog.Logger) {
	p.logger = logger
}

// Parse is shorthand for NewParser(store, resolver).Parse(ctx, r).
func Parse(ctx context.Context, r io.Reader, store *Store, resolver Resolver) ([]Element, error) {
	return NewParser(store, resolver).Parse(ctx, r)
}

type pendingMember struct {
	rel  *Relation
	kind Kind
	ref  int64
	role string
}

// Parse reads one document and returns its top-level elements in document
// order. Every element is registered in the store as soon as it opens.
// Relation members are resolved once the document ends, so a member defined
// later in the same document never goes to the resolver.
func (p *Parser) Parse(ctx context.Context, r io.Reader) ([]Element, error) {
	dec := xml.NewDecoder(r)

	var (
		out        []Element
		current    Element
		members    []pendingMember
		repeat     bool
		inRemark   bool
		remark     strings.Builder
		remarkLine int
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, _ := dec.InputPos()
			return nil, &ParseError{Tag: "?", Line: line, Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			line, _ := dec.InputPos()
			fail := func(err error) error {
				return &ParseError{Tag: name, Line: line, Err: err}
			}

			switch name {
			case "node", "way", "relation":
				if current != nil {
					return nil, fail(fmt.Errorf("%w: <%s> inside %s", ErrUnexpectedNesting, name, current.Key()))
				}
				kind, _ := ParseKind(name)
				el, known, err := p.begin(kind, t.Attr)
				if err != nil {
					return nil, fail(err)
				}
				current, repeat = el, known

			case "tag":
				if current == nil {
					return nil, fail(ErrUnexpectedOrphan)
				}
				k, ok := attr(t.Attr, "k")
				if !ok {
					return nil, fail(errors.New("missing k attribute"))
				}
				if repeat {
					continue
				}
				v, _ := attr(t.Attr, "v")
				current.TagMap()[k] = v

			case "member":
				if current == nil {
					return nil, fail(ErrUnexpectedOrphan)
				}
				rel, ok := current.(*Relation)
				if !ok {
					return nil, fail(fmt.Errorf("%w: <member> inside %s", ErrWrongParent, current.Key()))
				}
				kind, ref, role, err := memberRef(t.Attr)
				if err != nil {
					return nil, fail(err)
				}
				if repeat || p.ignored[role] {
					continue
				}
				members = append(members, pendingMember{rel: rel, kind: kind, ref: ref, role: role})

			case "remark":
				inRemark = true
				remark.Reset()
				remarkLine = line

			case "nd":
				if current == nil {
					return nil, fail(ErrUnexpectedOrphan)
				}
				way, ok := current.(*Way)
				if !ok {
					return nil, fail(fmt.Errorf("%w: <nd> inside %s", ErrWrongParent, current.Key()))
				}
				ref, err := intAttr(t.Attr, "ref")
				if err != nil {
					return nil, fail(err)
				}
				if repeat {
					continue
				}
				el, found, err := p.resolver.Resolve(ctx, KindNode, ref)
				if err != nil {
					return nil, fmt.Errorf("resolving node %d of way %d: %w", ref, way.ID, err)
				}
				n, isNode := el.(*Node)
				if !found || !isNode {
					return nil, fail(fmt.Errorf("%w: node %d in way %d", ErrDanglingNodeReference, ref, way.ID))
				}
				way.Nodes = append(way.Nodes, n)
			}

		case xml.CharData:
			if inRemark {
				remark.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "node", "way", "relation":
				if current != nil {
					out = append(out, current)
					current, repeat = nil, false
				}
			case "remark":
				inRemark = false
				if text := strings.TrimSpace(remark.String()); strings.Contains(text, "runtime error") {
					return nil, &ParseError{Tag: "remark", Line: remarkLine, Err: fmt.Errorf("%w: %s", ErrRuntimeRemark, text)}
				}
			}
		}
	}

	for _, m := range members {
		if err := p.addMember(ctx, m.rel, m.kind, m.ref, m.role); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// begin creates and registers the element for an opening top-level tag. A
// content-missing placeholder already in the store is filled in place so
// earlier references to it see the content. An element already stored with
// content keeps its first definition: it is returned with known set and the
// caller ignores the children of the repeat.
func (p *Parser) begin(kind Kind, attrs []xml.Attr) (el Element, known bool, err error) {
	id, err := intAttr(attrs, "id")
	if err != nil {
		return nil, false, err
	}

	existing, _ := p.store.Lookup(kind, id)
	if existing != nil && !existing.Missing() {
		return existing, true, nil
	}
	reuse := existing != nil

	switch kind {
	case KindNode:
		n := &Node{}
		if reuse {
			n = existing.(*Node)
		}
		*n = Node{ID: id, Tags: Tags{}}
		lat, latErr := floatAttr(attrs, "lat")
		lon, lonErr := floatAttr(attrs, "lon")
		if latErr == nil && lonErr == nil {
			n.Lat, n.Lon, n.Located = lat, lon, true
		}
		p.store.Register(n)
		return n, false, nil
	case KindWay:
		w := &Way{}
		if reuse {
			w = existing.(*Way)
		}
		*w = Way{ID: id, Tags: Tags{}}
		p.store.Register(w)
		return w, false, nil
	default:
		r := &Relation{}
		if reuse {
			r = existing.(*Relation)
		}
		*r = Relation{ID: id, Tags: Tags{}}
		p.store.Register(r)
		return r, false, nil
	}
}

func memberRef(attrs []xml.Attr) (Kind, int64, string, error) {
	role, _ := attr(attrs, "role")
	typ, ok := attr(attrs, "type")
	if !ok {
		return 0, 0, role, fmt.Errorf("%w: type", errMissingAttr)
	}
	kind, err := ParseKind(typ)
	if err != nil {
		return 0, 0, role, err
	}
	ref, err := intAttr(attrs, "ref")
	if err != nil {
		return 0, 0, role, err
	}
	return kind, ref, role, nil
}

// addMember resolves a member reference. Members that cannot be found are
// logged and left out of the relation.
func (p *Parser) addMember(ctx context.Context, rel *Relation, kind Kind, ref int64, role string) error {
	el, found, err := p.resolver.Resolve(ctx, kind, ref)
	if err != nil {
		return fmt.Errorf("resolving member %s/%d of relation %d: %w", kind, ref, rel.ID, err)
	}
	if !found {
		p.logger.Warn("skipping relation member that could not be found",
			"relation", rel.ID,
			"kind", kind.String(),
			"id", ref,
			"role", role)
		return nil
	}
	rel.Add(el, role)
	return nil
}

var errMissingAttr = errors.New("missing attribute")

func attr(attrs []xml.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func intAttr(attrs []xml.Attr, name string) (int64, error) {
	s, ok := attr(attrs, name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", errMissingAttr, name)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", name, err)
	}
	return v, nil
}

func floatAttr(attrs []xml.Attr, name string) (float64, error) {
	s, ok := attr(attrs, name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", errMissingAttr, name)
	}
	return strconv.ParseFloat(s, 64)
}
