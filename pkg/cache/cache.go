package cache

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmbounds/pkg/monitoring"
	"github.com/NERVsystems/osmbounds/pkg/tracing"
)

// observe records a lookup in layer for key on the metrics and the current
// span.
func observe(ctx context.Context, layer string, hit bool, key string) {
	if hit {
		monitoring.RecordCacheHit(layer)
	} else {
		monitoring.RecordCacheMiss(layer)
	}
	tracing.AddEvent(ctx, "cache_lookup", trace.WithAttributes(tracing.CacheAttributes(layer, hit, key)...))
}
