package inventory

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies a stock movement.
type TransactionType string

const (
	TypeOut        TransactionType = "out"
	TypeIn         TransactionType = "in"
	TypeAdjustment TransactionType = "adjustment"
)

// Transaction maps to the inventory_transactions table. Transactions are
// immutable once written; corrections are inverse postings.
type Transaction struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	SKU        string          `db:"sku" json:"sku"`
	Type       TransactionType `db:"type" json:"type"`
	Quantity   int             `db:"quantity" json:"quantity"`
	ReceiptID  *uuid.UUID      `db:"receipt_id" json:"receipt_id,omitempty"`
	CreatedBy  string          `db:"created_by" json:"created_by"`
	OccurredAt time.Time       `db:"occurred_at" json:"occurred_at"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
