package finance

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// Transaction is a single entry in the financial ledger. Entries are
// immutable once recorded; corrections are posted as offsetting entries.
type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	Type      TransactionType `json:"type"`
	Amount    float64         `json:"amount"`
	Category  string          `json:"category"`
	ReceiptID *uuid.UUID      `json:"receipt_id,omitempty"`
	CreatedBy string          `json:"created_by"`
	// OccurredAt is the business time of the entry, which can differ
	// from CreatedAt when entries are backfilled.
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}
