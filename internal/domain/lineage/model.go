package lineage

import "time"

// Kind identifies the record type a lineage node points at.
type Kind string

const (
	KindEncounter            Kind = "encounter"
	KindReceipt              Kind = "receipt"
	KindInventoryTransaction Kind = "inventory_transaction"
	KindFinancialTransaction Kind = "financial_transaction"
	KindAuditEvent           Kind = "audit_event"
)

// Edge links a derived record back to the record it was produced from.
// Edges are written in the same transaction as the records they connect,
// so the graph never references rows that were rolled back.
type Edge struct {
	SourceKind Kind      `json:"source_kind"`
	SourceID   string    `json:"source_id"`
	TargetKind Kind      `json:"target_kind"`
	TargetID   string    `json:"target_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Node is one vertex in a trace tree rooted at a receipt.
type Node struct {
	Kind     Kind    `json:"kind"`
	ID       string  `json:"id"`
	Children []*Node `json:"children,omitempty"`
}
