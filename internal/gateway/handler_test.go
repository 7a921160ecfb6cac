package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicore/billing/internal/automation"
	"github.com/clinicore/billing/internal/domain/inventory"
	"github.com/clinicore/billing/internal/domain/receipt"
	"github.com/clinicore/billing/internal/platform/auth"
	"github.com/clinicore/billing/internal/platform/memstore"
)

type unavailableResolver struct{}

func (unavailableResolver) Resolve(context.Context, automation.BillableItem) (automation.ResolvedPrice, error) {
	return automation.ResolvedPrice{}, automation.NewError(automation.KindUpstreamUnavailable, "pricing service down")
}

func newTestGateway(resolver automation.PriceResolver) (*Handler, *memstore.Store) {
	store := memstore.New()
	if resolver == nil {
		sku := "V1"
		resolver = automation.StaticResolver{
			"OV":  {UnitPrice: 50, Category: "consultation"},
			"VAX": {UnitPrice: 100, Category: "pharmacy", SKU: &sku},
		}
	}
	eng := automation.NewEngine(automation.EngineDeps{
		Tx:        store,
		Receipts:  store.Receipts(),
		Inventory: store.Inventory(),
		Finance:   store.Finance(),
		Audits:    store.Audits(),
		Lineage:   store.Lineage(),
		Registry:  store.Registry(),
		Pricing:   resolver,
	}, automation.DefaultPolicy(), zerolog.Nop())
	return NewHandler(eng, zerolog.Nop()), store
}

func postEvent(t *testing.T, path, body, actor string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if actor != "" {
		req = req.WithContext(auth.ContextWithActor(req.Context(), actor, "billing"))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func seedV1Stock(t *testing.T, store *memstore.Store, qty int) {
	t.Helper()
	err := store.Inventory().Create(context.Background(), &inventory.Transaction{
		SKU: "V1", Type: inventory.TypeAdjustment, Quantity: qty,
		CreatedBy: "seed", OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

const encounterBody = `{
	"encounter_id": "enc-1",
	"patient_id": "pat-1",
	"billable_items": [
		{"code": "OV", "description": "office visit", "quantity": 1},
		{"code": "VAX", "description": "vaccine vial", "quantity": 1}
	]
}`

func createReceiptViaGateway(t *testing.T, h *Handler) receipt.Receipt {
	t.Helper()
	c, rec := postEvent(t, "/api/v1/events/encounter-completed", encounterBody, "desk-1")
	if err := h.EncounterCompleted(c); err != nil {
		t.Fatalf("encounter completed: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created receipt.Receipt
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	return created
}

func TestEncounterCompleted_CreatesReceipt(t *testing.T) {
	h, _ := newTestGateway(nil)
	created := createReceiptViaGateway(t, h)

	if created.Status != receipt.StatusDraft {
		t.Errorf("expected draft, got %s", created.Status)
	}
	if created.Total != 150 {
		t.Errorf("expected total 150, got %.2f", created.Total)
	}
	if created.CreatedBy != "desk-1" {
		t.Errorf("actor must come from auth context, got %q", created.CreatedBy)
	}
}

func TestEncounterCompleted_RedeliveryIsNoOp(t *testing.T) {
	h, _ := newTestGateway(nil)
	createReceiptViaGateway(t, h)

	c, rec := postEvent(t, "/api/v1/events/encounter-completed", encounterBody, "desk-1")
	if err := h.EncounterCompleted(c); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", rec.Code)
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "duplicate" {
		t.Errorf("expected duplicate no-op body, got %v", body)
	}
}

func TestEncounterCompleted_RequiresActor(t *testing.T) {
	h, _ := newTestGateway(nil)
	c, _ := postEvent(t, "/api/v1/events/encounter-completed", encounterBody, "")
	err := h.EncounterCompleted(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestEncounterCompleted_UpstreamUnavailable(t *testing.T) {
	h, _ := newTestGateway(unavailableResolver{})
	c, rec := postEvent(t, "/api/v1/events/encounter-completed", encounterBody, "desk-1")
	err := h.EncounterCompleted(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on retryable failure")
	}
}

func TestPaymentRecorded_FullFlow(t *testing.T) {
	h, store := newTestGateway(nil)
	seedV1Stock(t, store, 5)
	created := createReceiptViaGateway(t, h)

	body := `{"receipt_id": "` + created.ID.String() + `", "amount": 150, "method": "card"}`
	c, rec := postEvent(t, "/api/v1/events/payment-recorded", body, "desk-2")
	if err := h.PaymentRecorded(c); err != nil {
		t.Fatalf("payment: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var paid receipt.Receipt
	json.Unmarshal(rec.Body.Bytes(), &paid)
	if paid.Status != receipt.StatusPaid {
		t.Errorf("expected paid, got %s", paid.Status)
	}
}

func TestPaymentRecorded_InvalidAmountConflicts(t *testing.T) {
	h, store := newTestGateway(nil)
	seedV1Stock(t, store, 5)
	created := createReceiptViaGateway(t, h)

	body := `{"receipt_id": "` + created.ID.String() + `", "amount": 999, "method": "card"}`
	c, _ := postEvent(t, "/api/v1/events/payment-recorded", body, "desk-2")
	err := h.PaymentRecorded(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestPaymentRecorded_InsufficientStockConflicts(t *testing.T) {
	h, _ := newTestGateway(nil)
	created := createReceiptViaGateway(t, h)

	body := `{"receipt_id": "` + created.ID.String() + `", "amount": 150, "method": "card"}`
	c, _ := postEvent(t, "/api/v1/events/payment-recorded", body, "desk-2")
	err := h.PaymentRecorded(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestPaymentRecorded_InvalidReceiptID(t *testing.T) {
	h, _ := newTestGateway(nil)
	c, _ := postEvent(t, "/api/v1/events/payment-recorded", `{"receipt_id": "not-a-uuid", "amount": 10}`, "desk-2")
	err := h.PaymentRecorded(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestVoidRequested_DraftSucceeds(t *testing.T) {
	h, _ := newTestGateway(nil)
	created := createReceiptViaGateway(t, h)

	body := `{"receipt_id": "` + created.ID.String() + `", "reason": "entered in error"}`
	c, rec := postEvent(t, "/api/v1/events/receipt-void", body, "admin-1")
	if err := h.VoidRequested(c); err != nil {
		t.Fatalf("void: %v", err)
	}
	var voided receipt.Receipt
	json.Unmarshal(rec.Body.Bytes(), &voided)
	if voided.Status != receipt.StatusVoided {
		t.Errorf("expected voided, got %s", voided.Status)
	}
}

func TestVoidRequested_PaidConflicts(t *testing.T) {
	h, store := newTestGateway(nil)
	seedV1Stock(t, store, 5)
	created := createReceiptViaGateway(t, h)

	payBody := `{"receipt_id": "` + created.ID.String() + `", "amount": 150, "method": "card"}`
	c, _ := postEvent(t, "/api/v1/events/payment-recorded", payBody, "desk-2")
	if err := h.PaymentRecorded(c); err != nil {
		t.Fatalf("payment: %v", err)
	}

	voidBody := `{"receipt_id": "` + created.ID.String() + `", "reason": "too late"}`
	c, _ = postEvent(t, "/api/v1/events/receipt-void", voidBody, "admin-1")
	err := h.VoidRequested(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestRefundRequested_FullRefund(t *testing.T) {
	h, store := newTestGateway(nil)
	seedV1Stock(t, store, 5)
	created := createReceiptViaGateway(t, h)

	payBody := `{"receipt_id": "` + created.ID.String() + `", "amount": 150, "method": "card"}`
	c, _ := postEvent(t, "/api/v1/events/payment-recorded", payBody, "desk-2")
	if err := h.PaymentRecorded(c); err != nil {
		t.Fatalf("payment: %v", err)
	}

	refundBody := `{"receipt_id": "` + created.ID.String() + `", "amount": 150, "reason": "cancelled"}`
	c, rec := postEvent(t, "/api/v1/events/receipt-refund", refundBody, "admin-1")
	if err := h.RefundRequested(c); err != nil {
		t.Fatalf("refund: %v", err)
	}
	var refunded receipt.Receipt
	json.Unmarshal(rec.Body.Bytes(), &refunded)
	if refunded.Status != receipt.StatusRefunded {
		t.Errorf("expected refunded, got %s", refunded.Status)
	}

	onHand, _ := store.Inventory().OnHand(context.Background(), "V1")
	if onHand != 5 {
		t.Errorf("expected stock restored to 5, got %d", onHand)
	}
}
