package receipt

import (
	"context"
	"fmt"

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

type receiptRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &receiptRepoPG{pool: pool}
}

func (r *receiptRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const receiptCols = `id, patient_id, encounter_id, status, total, discount, tax,
	amount_collected, amount_refunded, created_by, void_reason,
	created_at, updated_at`

func (r *receiptRepoPG) scanReceipt(row pgx.Row) (*Receipt, error) {
	var rc Receipt
	err := row.Scan(&rc.ID, &rc.PatientID, &rc.EncounterID, &rc.Status,
		&rc.Total, &rc.Discount, &rc.Tax,
		&rc.AmountCollected, &rc.AmountRefunded, &rc.CreatedBy, &rc.VoidReason,
		&rc.CreatedAt, &rc.UpdatedAt)
	return &rc, err
}

func (r *receiptRepoPG) Create(ctx context.Context, rc *Receipt) error {
	rc.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO receipts (id, patient_id, encounter_id, status, total, discount,
			tax, amount_collected, amount_refunded, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rc.ID, rc.PatientID, rc.EncounterID, rc.Status, rc.Total, rc.Discount,
		rc.Tax, rc.AmountCollected, rc.AmountRefunded, rc.CreatedBy)
	if err != nil {
		return err
	}
	for i, li := range rc.LineItems {
		li.ID = uuid.New()
		li.ReceiptID = rc.ID
		li.Sequence = i
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO receipt_line_items (id, receipt_id, sequence, description,
				quantity, unit_price, category, sku)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			li.ID, li.ReceiptID, li.Sequence, li.Description,
			li.Quantity, li.UnitPrice, li.Category, li.SKU)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *receiptRepoPG) loadLineItems(ctx context.Context, rc *Receipt) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, receipt_id, sequence, description, quantity, unit_price, category, sku
		FROM receipt_line_items WHERE receipt_id = $1 ORDER BY sequence`, rc.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var li LineItem
		if err := rows.Scan(&li.ID, &li.ReceiptID, &li.Sequence, &li.Description,
			&li.Quantity, &li.UnitPrice, &li.Category, &li.SKU); err != nil {
			return err
		}
		rc.LineItems = append(rc.LineItems, &li)
	}
	return rows.Err()
}

func (r *receiptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	rc, err := r.scanReceipt(r.conn(ctx).QueryRow(ctx,
		`SELECT `+receiptCols+` FROM receipts WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLineItems(ctx, rc); err != nil {
		return nil, err
	}
	return rc, nil
}

func (r *receiptRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	rc, err := r.scanReceipt(r.conn(ctx).QueryRow(ctx,
		`SELECT `+receiptCols+` FROM receipts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLineItems(ctx, rc); err != nil {
		return nil, err
	}
	return rc, nil
}

func (r *receiptRepoPG) GetByEncounter(ctx context.Context, encounterID string) (*Receipt, error) {
	rc, err := r.scanReceipt(r.conn(ctx).QueryRow(ctx,
		`SELECT `+receiptCols+` FROM receipts WHERE encounter_id = $1`, encounterID))
	if err != nil {
		return nil, err
	}
	if err := r.loadLineItems(ctx, rc); err != nil {
		return nil, err
	}
	return rc, nil
}

func (r *receiptRepoPG) Update(ctx context.Context, rc *Receipt) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE receipts SET status=$2, total=$3, discount=$4, tax=$5,
			amount_collected=$6, amount_refunded=$7, void_reason=$8, updated_at=NOW()
		WHERE id = $1`,
		rc.ID, rc.Status, rc.Total, rc.Discount, rc.Tax,
		rc.AmountCollected, rc.AmountRefunded, rc.VoidReason)
	return err
}

func (r *receiptRepoPG) List(ctx context.Context, limit, offset int) ([]*Receipt, int, error) {
	return r.Search(ctx, nil, limit, offset)
}

func (r *receiptRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Receipt, int, error) {
	query := `SELECT ` + receiptCols + ` FROM receipts WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM receipts WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["patient"]; ok {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if s, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, s)
		idx++
	}
	if e, ok := params["encounter"]; ok {
		query += fmt.Sprintf(` AND encounter_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND encounter_id = $%d`, idx)
		args = append(args, e)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Receipt
	for rows.Next() {
		rc, err := r.scanReceipt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rc)
	}
	return items, total, nil
}
