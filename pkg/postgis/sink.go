// Package postgis stores assembled boundaries in a PostGIS table.
package postgis

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/lib/pq/hstore"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/NERVsystems/osmbounds/pkg/boundary"
	"github.com/NERVsystems/osmbounds/pkg/geometry"
	"github.com/NERVsystems/osmbounds/pkg/monitoring"
)

// DefaultTable is the table boundaries are written to
const DefaultTable = "osm_boundaries"

const srid = 4326

// Open returns a connection pool for dsn.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	return db, nil
}

// Sink upserts boundaries keyed by relation id. It implements
// boundary.Sink.
type Sink struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// NewSink returns a sink writing to table, or DefaultTable when empty.
func NewSink(db *sql.DB, table string) *Sink {
	if table == "" {
		table = DefaultTable
	}
	return &Sink{db: db, table: table, logger: slog.Default()}
}

// SetLogger sets the logger
func (s *Sink) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Migrate creates the hstore and postgis extensions and the boundary table
// if they do not exist.
func (s *Sink) Migrate(ctx context.Context) error {
	t := pq.QuoteIdentifier(s.table)
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis`,
		`CREATE EXTENSION IF NOT EXISTS hstore`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	relation_id bigint PRIMARY KEY,
	name        text NOT NULL DEFAULT '',
	admin_level text NOT NULL DEFAULT '',
	tags        hstore,
	outer_rings integer NOT NULL,
	inner_rings integer NOT NULL,
	outer_geom  geometry(MultiPolygon, %d) NOT NULL,
	inner_geom  geometry(MultiPolygon, %d),
	geom        geometry(MultiPolygon, %d) NOT NULL,
	updated_at  timestamptz NOT NULL DEFAULT now()
)`, t, srid, srid, srid),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gist (geom)`,
			pq.QuoteIdentifier(s.table+"_geom_idx"), t),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating %s: %w", s.table, err)
		}
	}
	return nil
}

// upsertSQL repairs each geometry with ST_MakeValid and keeps only its
// polygonal part. A NULL inner geometry stays NULL.
func (s *Sink) upsertSQL() string {
	valid := func(n int) string {
		return fmt.Sprintf("ST_Multi(ST_CollectionExtract(ST_MakeValid(ST_GeomFromWKB($%d, %d)), 3))", n, srid)
	}
	return fmt.Sprintf(`INSERT INTO %s (relation_id, name, admin_level, tags, outer_rings, inner_rings, outer_geom, inner_geom, geom)
VALUES ($1, $2, $3, $4, $5, $6, %s, %s, %s)
ON CONFLICT (relation_id) DO UPDATE SET name=EXCLUDED.name, admin_level=EXCLUDED.admin_level, tags=EXCLUDED.tags,
	outer_rings=EXCLUDED.outer_rings, inner_rings=EXCLUDED.inner_rings,
	outer_geom=EXCLUDED.outer_geom, inner_geom=EXCLUDED.inner_geom, geom=EXCLUDED.geom, updated_at=now()`,
		pq.QuoteIdentifier(s.table), valid(7), valid(8), valid(9))
}

// SaveBoundary writes the outer rings, the inner rings and the combined
// polygon-with-holes geometry of b.
func (s *Sink) SaveBoundary(ctx context.Context, b *boundary.Boundary) error {
	outer, err := geometry.MultiPolygon(b.Outer, nil)
	if err != nil {
		return err
	}
	combined, err := geometry.MultiPolygon(b.Outer, b.Inner)
	if err != nil {
		return err
	}

	var inner interface{}
	if len(b.Inner) > 0 {
		holes, err := geometry.MultiPolygon(b.Inner, nil)
		if err != nil {
			return err
		}
		inner = wkb.Value(holes)
	}

	_, err = s.db.ExecContext(ctx, s.upsertSQL(),
		b.RelationID,
		b.Name,
		b.AdminLevel,
		tagsToHstore(b.Tags),
		len(b.Outer),
		len(b.Inner),
		wkb.Value(outer),
		inner,
		wkb.Value(combined),
	)
	if err != nil {
		monitoring.RecordError("postgis", "upsert")
		return fmt.Errorf("upserting relation %d: %w", b.RelationID, err)
	}

	s.logger.Info("stored boundary", "relation", b.RelationID, "table", s.table)
	return nil
}

// Ping checks the database connection.
func (s *Sink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func tagsToHstore(tags map[string]string) hstore.Hstore {
	hs := hstore.Hstore{Map: make(map[string]sql.NullString, len(tags))}
	for k, v := range tags {
		hs.Map[k] = sql.NullString{String: v, Valid: true}
	}
	return hs
}

var _ boundary.Sink = (*Sink)(nil)
