package audit

import (
	"context"

	"github.com/google/uuid"
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

type auditRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &auditRepoPG{pool: pool}
}

func (r *auditRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const eventCols = `id, event_type, resource_type, resource_id, actor, outcome,
	detail, origin_address, user_agent, sensitive, recorded_at`

func (r *auditRepoPG) scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.EventType, &e.ResourceType, &e.ResourceID, &e.Actor,
		&e.Outcome, &e.Detail, &e.OriginAddress, &e.UserAgent, &e.Sensitive, &e.RecordedAt)
	return &e, err
}

func (r *auditRepoPG) Append(ctx context.Context, e *Event) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_events (id, event_type, resource_type, resource_id, actor,
			outcome, detail, origin_address, user_agent, sensitive, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.EventType, e.ResourceType, e.ResourceID, e.Actor,
		e.Outcome, e.Detail, e.OriginAddress, e.UserAgent, e.Sensitive, e.RecordedAt)
	return err
}

func (r *auditRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	return r.scanEvent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+eventCols+` FROM audit_events WHERE id = $1`, id))
}

func (r *auditRepoPG) ListByResource(ctx context.Context, resourceType, resourceID string) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+eventCols+` FROM audit_events
		WHERE resource_type = $1 AND resource_id = $2 ORDER BY recorded_at`,
		resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Event
	for rows.Next() {
		e, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *auditRepoPG) List(ctx context.Context, limit, offset int) ([]*Event, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_events`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+eventCols+` FROM audit_events ORDER BY recorded_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Event
	for rows.Next() {
		e, err := r.scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, nil
}
