package lineage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/billing/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type lineageRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &lineageRepoPG{pool: pool}
}

func (r *lineageRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const edgeCols = `source_kind, source_id, target_kind, target_id, created_at`

func (r *lineageRepoPG) Add(ctx context.Context, e *Edge) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lineage_edges (source_kind, source_id, target_kind, target_id)
		VALUES ($1,$2,$3,$4)`,
		e.SourceKind, e.SourceID, e.TargetKind, e.TargetID)
	return err
}

func (r *lineageRepoPG) ListBySource(ctx context.Context, sourceKind Kind, sourceID string) ([]*Edge, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+edgeCols+` FROM lineage_edges
		WHERE source_kind = $1 AND source_id = $2 ORDER BY created_at`,
		sourceKind, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEdges(rows)
}

func (r *lineageRepoPG) ListByTarget(ctx context.Context, targetKind Kind, targetID string) ([]*Edge, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+edgeCols+` FROM lineage_edges
		WHERE target_kind = $1 AND target_id = $2 ORDER BY created_at`,
		targetKind, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEdges(rows)
}

func scanEdges(rows pgx.Rows) ([]*Edge, error) {
	var edges []*Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.SourceKind, &e.SourceID, &e.TargetKind, &e.TargetID, &e.CreatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}
