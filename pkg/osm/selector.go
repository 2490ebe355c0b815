package osm

import (
	"iter"
	"slices"
)

// WaysOf yields, in member order, the ways forming the outer boundary of rel
// (inner false) or its holes (inner true). Outer members have an empty or
// "outer" role, inner members "inner" or "enclave". Member relations are
// walked with the same flag. A relation already being walked further up is
// not entered again, and content-missing members are treated as absent.
func WaysOf(rel *Relation, inner bool) iter.Seq[*Way] {
	return func(yield func(*Way) bool) {
		walk(rel, inner, map[int64]bool{}, yield)
	}
}

func walk(rel *Relation, inner bool, path map[int64]bool, yield func(*Way) bool) bool {
	if path[rel.ID] {
		return true
	}
	path[rel.ID] = true
	defer delete(path, rel.ID)

	for _, m := range rel.Members {
		if !wantRole(m.Role, inner) || m.Element.Missing() {
			continue
		}
		switch el := m.Element.(type) {
		case *Way:
			if !yield(el) {
				return false
			}
		case *Relation:
			if !walk(el, inner, path, yield) {
				return false
			}
		}
	}
	return true
}

func wantRole(role string, inner bool) bool {
	if slices.Contains(DefaultIgnoredRoles, role) {
		return false
	}
	if inner {
		return role == "inner" || role == "enclave"
	}
	return role == "" || role == "outer"
}

// OuterWays collects WaysOf(rel, false).
func OuterWays(rel *Relation) []*Way {
	return slices.Collect(WaysOf(rel, false))
}

// InnerWays collects WaysOf(rel, true).
func InnerWays(rel *Relation) []*Way {
	return slices.Collect(WaysOf(rel, true))
}
