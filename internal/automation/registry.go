package automation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/billing/internal/platform/db"
)

// TriggerKey builds the stable idempotency key for one logical trigger.
func TriggerKey(eventType, sourceID, sourceVersion string) string {
	return fmt.Sprintf("%s:%s:%s", eventType, sourceID, sourceVersion)
}

// Registry deduplicates automation triggers. Register returns
// ErrDuplicateTrigger when the key was already claimed. The durable
// implementation joins the saga transaction through the context, so a
// rolled-back saga releases its key.
type Registry interface {
	Register(ctx context.Context, key string) error
}

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type registryPG struct{ pool *pgxpool.Pool }

func NewRegistryPG(pool *pgxpool.Pool) Registry {
	return &registryPG{pool: pool}
}

func (r *registryPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *registryPG) Register(ctx context.Context, key string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO automation_triggers (trigger_key)
		VALUES ($1)
		ON CONFLICT (trigger_key) DO NOTHING`, key)
	if err != nil {
		return fmt.Errorf("register trigger %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return NewError(KindDuplicateTrigger, "trigger %q already processed", key)
	}
	return nil
}
