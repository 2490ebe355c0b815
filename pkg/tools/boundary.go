package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmbounds/pkg/boundary"
	"github.com/NERVsystems/osmbounds/pkg/core"
	"github.com/NERVsystems/osmbounds/pkg/geometry"
	"github.com/NERVsystems/osmbounds/pkg/osm"
)

// Output formats for get_boundary
const (
	FormatSummary = "summary"
	FormatGeoJSON = "geojson"
	FormatRings   = "rings"
)

// BoundaryInput is the argument object of get_boundary and check_boundary
type BoundaryInput struct {
	RelationID int64  `json:"relation_id"`
	Format     string `json:"format,omitempty"`
}

// BBox is a lon/lat bounding box
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// BoundarySummary describes an assembled boundary without its coordinates
type BoundarySummary struct {
	RelationID int64   `json:"relation_id"`
	Name       string  `json:"name,omitempty"`
	AdminLevel string  `json:"admin_level,omitempty"`
	OuterRings int     `json:"outer_rings"`
	InnerRings int     `json:"inner_rings"`
	OuterNodes int     `json:"outer_nodes"`
	InnerNodes int     `json:"inner_nodes"`
	BBox       BBox    `json:"bbox"`
	AreaKm2    float64 `json:"area_km2"`
}

// Ring is one closed ring with its node ids and [lon, lat] coordinates
type Ring struct {
	Nodes       []int64      `json:"nodes"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// BoundaryRings is the rings output of get_boundary
type BoundaryRings struct {
	RelationID int64  `json:"relation_id"`
	Name       string `json:"name,omitempty"`
	Outer      []Ring `json:"outer"`
	Inner      []Ring `json:"inner"`
}

// Endpoint is one node left open after joining
type Endpoint struct {
	Node      int64 `json:"node"`
	WayStart  int64 `json:"way_start"`
	WayEnd    int64 `json:"way_end"`
	Unlocated bool  `json:"unlocated,omitempty"`
}

// CheckResult is the output of check_boundary
type CheckResult struct {
	RelationID int64      `json:"relation_id"`
	Closed     bool       `json:"closed"`
	OuterRings int        `json:"outer_rings,omitempty"`
	InnerRings int        `json:"inner_rings,omitempty"`
	Dangling   []Endpoint `json:"dangling,omitempty"`
}

// BoundaryTools holds the handlers backed by one assembler
type BoundaryTools struct {
	assembler *boundary.Assembler
}

// NewBoundaryTools returns the boundary tool handlers
func NewBoundaryTools(a *boundary.Assembler) *BoundaryTools {
	return &BoundaryTools{assembler: a}
}

// GetBoundaryTool returns a tool definition for assembling one boundary
func GetBoundaryTool() mcp.Tool {
	return mcp.NewTool("get_boundary",
		mcp.WithDescription("Assemble the closed outer and inner rings of an OpenStreetMap boundary relation"),
		mcp.WithNumber("relation_id",
			mcp.Required(),
			mcp.Description("The OSM relation id, e.g. 62422 for Berlin"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: summary (counts, bbox and area), geojson (a MultiPolygon feature) or rings (node ids and coordinates)"),
			mcp.Enum(FormatSummary, FormatGeoJSON, FormatRings),
			mcp.DefaultString(FormatSummary),
		),
	)
}

// CheckBoundaryTool returns a tool definition for diagnosing unclosed boundaries
func CheckBoundaryTool() mcp.Tool {
	return mcp.NewTool("check_boundary",
		mcp.WithDescription("Check whether a boundary relation closes and list the endpoints that do not"),
		mcp.WithNumber("relation_id",
			mcp.Required(),
			mcp.Description("The OSM relation id"),
		),
	)
}

// HandleGetBoundary implements get_boundary
func (t *BoundaryTools) HandleGetBoundary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("get_boundary", func(ctx context.Context, input BoundaryInput, logger *slog.Logger) (interface{}, error) {
		if err := ValidateRelationID(input.RelationID); err != nil {
			return nil, err
		}
		format := input.Format
		if format == "" {
			format = FormatSummary
		}
		if format != FormatSummary && format != FormatGeoJSON && format != FormatRings {
			return nil, core.NewValidationError(core.ErrInvalidParameter,
				fmt.Sprintf("unknown format %q", input.Format)).
				WithSuggestions(FormatSummary, FormatGeoJSON, FormatRings)
		}

		b, err := t.assembler.Assemble(ctx, input.RelationID)
		if err != nil {
			return nil, err
		}
		logger.Debug("boundary assembled", "relation", b.RelationID, "format", format)

		switch format {
		case FormatGeoJSON:
			f, err := geometry.Feature(b)
			if err != nil {
				return nil, core.NewError(core.ErrInvalidGeometry, err.Error())
			}
			data, err := json.Marshal(f)
			if err != nil {
				return nil, err
			}
			return json.RawMessage(data), nil
		case FormatRings:
			return Rings(b), nil
		default:
			return Summarize(b)
		}
	})(ctx, req)
}

// HandleCheckBoundary implements check_boundary. An unclosed boundary is a
// successful check with Closed false.
func (t *BoundaryTools) HandleCheckBoundary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("check_boundary", func(ctx context.Context, input BoundaryInput, logger *slog.Logger) (interface{}, error) {
		if err := ValidateRelationID(input.RelationID); err != nil {
			return nil, err
		}

		b, err := t.assembler.Assemble(ctx, input.RelationID)
		var unclosed *osm.UnclosedBoundariesError
		switch {
		case errors.As(err, &unclosed):
			return CheckResult{
				RelationID: input.RelationID,
				Dangling:   endpoints(unclosed),
			}, nil
		case err != nil:
			return nil, err
		}
		return CheckResult{
			RelationID: b.RelationID,
			Closed:     true,
			OuterRings: len(b.Outer),
			InnerRings: len(b.Inner),
		}, nil
	})(ctx, req)
}

// Summarize returns the ring and node counts, bounding box and area of b.
func Summarize(b *boundary.Boundary) (BoundarySummary, error) {
	s := BoundarySummary{
		RelationID: b.RelationID,
		Name:       b.Name,
		AdminLevel: b.AdminLevel,
		OuterRings: len(b.Outer),
		InnerRings: len(b.Inner),
		OuterNodes: countNodes(b.Outer),
		InnerNodes: countNodes(b.Inner),
	}

	mp, err := geometry.MultiPolygon(b.Outer, b.Inner)
	if err != nil {
		return s, core.NewError(core.ErrInvalidGeometry, err.Error())
	}
	bound := mp.Bound()
	s.BBox = BBox{
		MinLat: bound.Min.Lat(),
		MinLon: bound.Min.Lon(),
		MaxLat: bound.Max.Lat(),
		MaxLon: bound.Max.Lon(),
	}
	s.AreaKm2 = geometry.AreaKm2(mp)
	return s, nil
}

// Rings returns every ring of b as node ids and coordinates.
func Rings(b *boundary.Boundary) BoundaryRings {
	return BoundaryRings{
		RelationID: b.RelationID,
		Name:       b.Name,
		Outer:      toRings(b.Outer),
		Inner:      toRings(b.Inner),
	}
}

func toRings(ways []*osm.Way) []Ring {
	out := make([]Ring, len(ways))
	for i, w := range ways {
		r := Ring{
			Nodes:       make([]int64, len(w.Nodes)),
			Coordinates: make([][2]float64, len(w.Nodes)),
		}
		for j, n := range w.Nodes {
			r.Nodes[j] = n.ID
			r.Coordinates[j] = [2]float64{n.Lon, n.Lat}
		}
		out[i] = r
	}
	return out
}

func countNodes(ways []*osm.Way) int {
	n := 0
	for _, w := range ways {
		// the closing node repeats the first
		n += len(w.Nodes) - 1
	}
	return n
}

func endpoints(e *osm.UnclosedBoundariesError) []Endpoint {
	out := make([]Endpoint, len(e.Dangling))
	for i, d := range e.Dangling {
		out[i] = Endpoint{
			Node:      d.Node.ID,
			WayStart:  d.First.ID,
			WayEnd:    d.Last.ID,
			Unlocated: !d.Node.Located,
		}
	}
	return out
}

