// Package geometry converts assembled boundaries into orb geometries and
// GeoJSON.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/NERVsystems/osmbounds/pkg/boundary"
	"github.com/NERVsystems/osmbounds/pkg/osm"
)

var (
	ErrUnlocatedNode = errors.New("node has no location")
	ErrOpenRing      = errors.New("way is not a closed ring")
)

// Ring returns the closed way as a ring of lon/lat points.
func Ring(w *osm.Way) (orb.Ring, error) {
	if !w.Closed() {
		return nil, fmt.Errorf("%w: %s", ErrOpenRing, w)
	}
	ring := make(orb.Ring, len(w.Nodes))
	for i, n := range w.Nodes {
		if !n.Located {
			return nil, fmt.Errorf("%w: node %d in way %d", ErrUnlocatedNode, n.ID, w.ID)
		}
		ring[i] = orb.Point{n.Lon, n.Lat}
	}
	return ring, nil
}

func rings(ways []*osm.Way, want orb.Orientation) ([]orb.Ring, error) {
	out := make([]orb.Ring, 0, len(ways))
	for _, w := range ways {
		r, err := Ring(w)
		if err != nil {
			return nil, err
		}
		if r.Orientation() != want {
			r.Reverse()
		}
		out = append(out, r)
	}
	return out, nil
}

// MultiPolygon builds one polygon per outer ring, wound counter-clockwise,
// with the holes it contains wound clockwise. A hole belongs to the smallest
// outer ring containing all of its vertices; holes outside every outer ring
// are dropped. Polygons are ordered by decreasing area.
func MultiPolygon(outer, inner []*osm.Way) (orb.MultiPolygon, error) {
	shells, err := rings(outer, orb.CCW)
	if err != nil {
		return nil, err
	}
	holes, err := rings(inner, orb.CW)
	if err != nil {
		return nil, err
	}

	areas := make([]float64, len(shells))
	for i, s := range shells {
		areas[i] = math.Abs(planar.Area(s))
	}

	mp := make(orb.MultiPolygon, len(shells))
	for i, s := range shells {
		mp[i] = orb.Polygon{s}
	}

	for _, h := range holes {
		best := -1
		for i, s := range shells {
			if !contains(s, h) {
				continue
			}
			if best < 0 || areas[i] < areas[best] {
				best = i
			}
		}
		if best >= 0 {
			mp[best] = append(mp[best], h)
		}
	}

	order := make([]int, len(mp))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return areas[order[a]] > areas[order[b]] })

	sorted := make(orb.MultiPolygon, len(mp))
	for i, idx := range order {
		sorted[i] = mp[idx]
	}
	return sorted, nil
}

// contains reports whether every vertex of hole lies in or on shell.
func contains(shell, hole orb.Ring) bool {
	if !shell.Bound().Contains(hole[0]) {
		return false
	}
	for _, p := range hole {
		if !planar.RingContains(shell, p) {
			return false
		}
	}
	return true
}

// Bound returns the bounding box of the boundary's outer rings.
func Bound(b *boundary.Boundary) (orb.Bound, error) {
	mp, err := MultiPolygon(b.Outer, nil)
	if err != nil {
		return orb.Bound{}, err
	}
	return mp.Bound(), nil
}

// AreaKm2 returns the approximate geodesic area of the boundary in square
// kilometres.
func AreaKm2(mp orb.MultiPolygon) float64 {
	return math.Abs(geo.Area(mp)) / 1e6
}

// Feature returns the boundary as a GeoJSON feature with its name,
// admin_level and relation id as properties.
func Feature(b *boundary.Boundary) (*geojson.Feature, error) {
	mp, err := MultiPolygon(b.Outer, b.Inner)
	if err != nil {
		return nil, fmt.Errorf("relation %d: %w", b.RelationID, err)
	}

	f := geojson.NewFeature(mp)
	f.ID = b.RelationID
	f.Properties["relation_id"] = b.RelationID
	if b.Name != "" {
		f.Properties["name"] = b.Name
	}
	if b.AdminLevel != "" {
		f.Properties["admin_level"] = b.AdminLevel
	}
	return f, nil
}

// FeatureCollection returns the boundaries as one GeoJSON collection.
func FeatureCollection(bs ...*boundary.Boundary) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, b := range bs {
		f, err := Feature(b)
		if err != nil {
			return nil, err
		}
		fc.Append(f)
	}
	return fc, nil
}
