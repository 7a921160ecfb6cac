package inventory

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

type inventoryRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &inventoryRepoPG{pool: pool}
}

func (r *inventoryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const txCols = `id, sku, type, quantity, receipt_id, created_by, occurred_at, created_at`

func (r *inventoryRepoPG) scanTx(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.SKU, &t.Type, &t.Quantity, &t.ReceiptID,
		&t.CreatedBy, &t.OccurredAt, &t.CreatedAt)
	return &t, err
}

func (r *inventoryRepoPG) Create(ctx context.Context, t *Transaction) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO inventory_transactions (id, sku, type, quantity, receipt_id,
			created_by, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.SKU, t.Type, t.Quantity, t.ReceiptID, t.CreatedBy, t.OccurredAt)
	return err
}

func (r *inventoryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return r.scanTx(r.conn(ctx).QueryRow(ctx,
		`SELECT `+txCols+` FROM inventory_transactions WHERE id = $1`, id))
}

func (r *inventoryRepoPG) ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*Transaction, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+txCols+` FROM inventory_transactions WHERE receipt_id = $1 ORDER BY created_at`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Transaction
	for rows.Next() {
		t, err := r.scanTx(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *inventoryRepoPG) ListBySKU(ctx context.Context, sku string, limit, offset int) ([]*Transaction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM inventory_transactions WHERE sku = $1`, sku).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+txCols+` FROM inventory_transactions WHERE sku = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		sku, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Transaction
	for rows.Next() {
		t, err := r.scanTx(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, nil
}

func (r *inventoryRepoPG) List(ctx context.Context, limit, offset int) ([]*Transaction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM inventory_transactions`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+txCols+` FROM inventory_transactions ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Transaction
	for rows.Next() {
		t, err := r.scanTx(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, nil
}

func (r *inventoryRepoPG) OnHand(ctx context.Context, sku string) (int, error) {
	var sum int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM inventory_transactions WHERE sku = $1`, sku).Scan(&sum)
	return sum, err
}
