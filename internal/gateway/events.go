package gateway

import "github.com/clinicore/billing/internal/automation"

// Inbound trigger payloads. The acting identity is never part of the
// payload; it always comes from the authenticated request context.
// Version identifies the source resource revision for idempotency and
// defaults to "1" when the sender does not track revisions.

type encounterCompletedRequest struct {
	EncounterID   string                    `json:"encounter_id"`
	PatientID     string                    `json:"patient_id"`
	BillableItems []automation.BillableItem `json:"billable_items"`
	Version       string                    `json:"version"`
}

type paymentRecordedRequest struct {
	ReceiptID string  `json:"receipt_id"`
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	Version   string  `json:"version"`
}

type voidRequest struct {
	ReceiptID string `json:"receipt_id"`
	Reason    string `json:"reason"`
	Version   string `json:"version"`
}

type refundRequest struct {
	ReceiptID string  `json:"receipt_id"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
	Version   string  `json:"version"`
}

func defaultVersion(v string) string {
	if v == "" {
		return "1"
	}
	return v
}
