package receipt

import (
	"time"

	"github.com/google/uuid"
)

// Status is the receipt payment lifecycle state.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusVoided        Status = "voided"
	StatusRefunded      Status = "refunded"
)

// Receipt maps to the receipts table. Receipts are never deleted; voided
// and refunded are soft-terminal states.
type Receipt struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	PatientID       string      `db:"patient_id" json:"patient_id"`
	EncounterID     string      `db:"encounter_id" json:"encounter_id"`
	Status          Status      `db:"status" json:"status"`
	Total           float64     `db:"total" json:"total"`
	Discount        float64     `db:"discount" json:"discount"`
	Tax             float64     `db:"tax" json:"tax"`
	AmountCollected float64     `db:"amount_collected" json:"amount_collected"`
	AmountRefunded  float64     `db:"amount_refunded" json:"amount_refunded"`
	CreatedBy       string      `db:"created_by" json:"created_by"`
	VoidReason      *string     `db:"void_reason" json:"void_reason,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
	LineItems       []*LineItem `db:"-" json:"line_items,omitempty"`
}

// LineItem maps to the receipt_line_items table.
type LineItem struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ReceiptID   uuid.UUID `db:"receipt_id" json:"receipt_id"`
	Sequence    int       `db:"sequence" json:"sequence"`
	Description string    `db:"description" json:"description"`
	Quantity    int       `db:"quantity" json:"quantity"`
	UnitPrice   float64   `db:"unit_price" json:"unit_price"`
	Category    string    `db:"category" json:"category"`
	SKU         *string   `db:"sku" json:"sku,omitempty"`
}

// Subtotal returns quantity times unit price for the line.
func (li *LineItem) Subtotal() float64 {
	return float64(li.Quantity) * li.UnitPrice
}

// ComputeTotal recalculates the receipt total from its line items,
// discount, and tax.
func (r *Receipt) ComputeTotal() float64 {
	var sum float64
	for _, li := range r.LineItems {
		sum += li.Subtotal()
	}
	return sum - r.Discount + r.Tax
}

// Outstanding returns the amount still owed on the receipt.
func (r *Receipt) Outstanding() float64 {
	return r.Total - r.AmountCollected
}

// NetCollected returns collected income net of refunds.
func (r *Receipt) NetCollected() float64 {
	return r.AmountCollected - r.AmountRefunded
}

// IsTerminal reports whether the receipt is in a state that admits no
// further transition.
func (r *Receipt) IsTerminal() bool {
	return r.Status == StatusVoided || r.Status == StatusRefunded
}

// CanTransition reports whether the state machine permits moving from
// the current status to the target. Void remains available from any
// paying state; whether the receipt is still unfulfilled is checked by
// the caller against the inventory ledger, which the model cannot see.
// Refunds require collected money to reverse.
func (r *Receipt) CanTransition(to Status) bool {
	switch r.Status {
	case StatusDraft:
		return to == StatusPaid || to == StatusPartiallyPaid || to == StatusVoided
	case StatusPartiallyPaid:
		return to == StatusPaid || to == StatusPartiallyPaid || to == StatusRefunded || to == StatusVoided
	case StatusPaid:
		return to == StatusRefunded || to == StatusVoided
	default:
		// voided and refunded are terminal
		return false
	}
}
