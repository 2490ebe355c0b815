package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys
const (
	// Element attributes
	AttrElementKind = "osm.element.kind"
	AttrElementID   = "osm.element.id"
	AttrElementsOut = "osm.element.parsed"

	// Assembly attributes
	AttrRelationID        = "osm.relation.id"
	AttrRelationName      = "osm.relation.name"
	AttrOuterWays         = "osm.boundary.outer_ways"
	AttrInnerWays         = "osm.boundary.inner_ways"
	AttrOuterRings        = "osm.boundary.outer_rings"
	AttrInnerRings        = "osm.boundary.inner_rings"
	AttrUnclosedEndpoints = "osm.boundary.unclosed_endpoints"

	// Tool attributes
	AttrToolName     = "mcp.tool.name"
	AttrToolStatus   = "mcp.tool.status"
	AttrToolDuration = "mcp.tool.duration_ms"

	// Cache attributes
	AttrCacheLayer = "osm.cache.layer"
	AttrCacheHit   = "osm.cache.hit"
	AttrCacheKey   = "osm.cache.key"

	// Rate limiting attributes
	AttrRateLimitWaitMs = "osm.ratelimit.wait_ms"

	// HTTP attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Status values
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusNotFound = "not_found"
	StatusUnclosed = "unclosed"
)

// Cache layers
const (
	CacheLayerMemory = "memory"
	CacheLayerDisk   = "disk"
	CacheLayerRedis  = "redis"
)

// ElementAttributes returns attributes identifying an element
func ElementAttributes(kind string, id int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrElementKind, kind),
		attribute.Int64(AttrElementID, id),
	}
}

// RingAttributes returns attributes summarising an assembled boundary
func RingAttributes(outerWays, innerWays, outerRings, innerRings int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrOuterWays, outerWays),
		attribute.Int(AttrInnerWays, innerWays),
		attribute.Int(AttrOuterRings, outerRings),
		attribute.Int(AttrInnerRings, innerRings),
	}
}

// CacheAttributes returns attributes for cache operations
func CacheAttributes(layer string, hit bool, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCacheLayer, layer),
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheKey, key),
	}
}

// ErrorAttributes returns attributes for errors
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, "error"),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}
