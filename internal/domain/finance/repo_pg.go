package finance

import (
	"context"
	"time"

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

type financeRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &financeRepoPG{pool: pool}
}

func (r *financeRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const txCols = `id, type, amount, category, receipt_id, created_by, occurred_at, created_at`

func (r *financeRepoPG) scanTx(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.Type, &t.Amount, &t.Category, &t.ReceiptID,
		&t.CreatedBy, &t.OccurredAt, &t.CreatedAt)
	return &t, err
}

func (r *financeRepoPG) Create(ctx context.Context, t *Transaction) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO financial_transactions (id, type, amount, category, receipt_id,
			created_by, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.Type, t.Amount, t.Category, t.ReceiptID, t.CreatedBy, t.OccurredAt)
	return err
}

func (r *financeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return r.scanTx(r.conn(ctx).QueryRow(ctx,
		`SELECT `+txCols+` FROM financial_transactions WHERE id = $1`, id))
}

func (r *financeRepoPG) ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*Transaction, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+txCols+` FROM financial_transactions WHERE receipt_id = $1 ORDER BY created_at`, receiptID)
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

func (r *financeRepoPG) List(ctx context.Context, limit, offset int) ([]*Transaction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM financial_transactions`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+txCols+` FROM financial_transactions ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
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

func (r *financeRepoPG) SumByCategory(ctx context.Context, from, to time.Time) ([]CategorySum, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT type, category, COALESCE(SUM(amount), 0), COUNT(*)
		FROM financial_transactions
		WHERE occurred_at >= $1 AND occurred_at < $2
		GROUP BY type, category
		ORDER BY type, category`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sums []CategorySum
	for rows.Next() {
		var s CategorySum
		if err := rows.Scan(&s.Type, &s.Category, &s.Total, &s.Count); err != nil {
			return nil, err
		}
		sums = append(sums, s)
	}
	return sums, rows.Err()
}
