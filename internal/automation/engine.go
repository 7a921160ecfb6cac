package automation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/billing/internal/config"
	"github.com/clinicore/billing/internal/domain/audit"
	"github.com/clinicore/billing/internal/domain/finance"
	"github.com/clinicore/billing/internal/domain/inventory"
	"github.com/clinicore/billing/internal/domain/lineage"
	"github.com/clinicore/billing/internal/domain/receipt"
	"github.com/clinicore/billing/internal/platform/db"
	"github.com/clinicore/billing/internal/platform/events"
)

// Trigger event types, also used to build idempotency keys.
const (
	TriggerEncounterCompleted = "encounter.completed"
	TriggerPaymentRecorded    = "payment.recorded"
	TriggerVoidRequested      = "receipt.void_requested"
	TriggerRefundRequested    = "receipt.refund_requested"
)

// amountEpsilon absorbs float rounding when comparing money values.
const amountEpsilon = 1e-9

// EncounterCompleted asks the engine to generate a draft receipt from a
// completed clinical encounter.
type EncounterCompleted struct {
	EncounterID string
	PatientID   string
	Items       []BillableItem
	Version     string
	Actor       string
}

// PaymentRecorded applies a collected payment to a receipt.
type PaymentRecorded struct {
	ReceiptID uuid.UUID
	Amount    float64
	Method    string
	Version   string
	Actor     string
}

// VoidRequested cancels a receipt that has not been fulfilled.
type VoidRequested struct {
	ReceiptID uuid.UUID
	Reason    string
	Version   string
	Actor     string
}

// RefundRequested reverses collected income, fully or partially.
type RefundRequested struct {
	ReceiptID uuid.UUID
	Amount    float64
	Reason    string
	Version   string
	Actor     string
}

// Policy holds the clinic-configurable behavior points.
type Policy struct {
	// InventoryDeduction: config.DeductOnFullPayment posts stock
	// deductions only when the receipt transitions into paid;
	// config.DeductOnPartialPayment posts them on the first successful
	// payment.
	InventoryDeduction string
	// NegativeStock: config.NegativeStockBlock rejects a deduction that
	// would drive on-hand negative; config.NegativeStockWarn logs and
	// proceeds.
	NegativeStock string
}

func DefaultPolicy() Policy {
	return Policy{
		InventoryDeduction: config.DeductOnFullPayment,
		NegativeStock:      config.NegativeStockBlock,
	}
}

// Notifier delivers outbound domain events. Delivery is best effort and
// happens only after the saga transaction commits.
type Notifier interface {
	Publish(ctx context.Context, event events.Event) []events.DeliveryResult
}

// EngineDeps bundles the engine's collaborators.
type EngineDeps struct {
	Tx        db.TxRunner
	Receipts  receipt.Repository
	Inventory inventory.Repository
	Finance   finance.Repository
	Audits    audit.Repository
	Lineage   lineage.Repository
	Registry  Registry
	Pricing   PriceResolver
	Notifier  Notifier
}

// Engine coordinates the automation sagas. Each Handle method runs all
// of its ledger effects in one transaction; a failure at any step rolls
// everything back, and the failure itself is still recorded in the audit
// trail after the rollback.
type Engine struct {
	tx        db.TxRunner
	receipts  receipt.Repository
	inventory inventory.Repository
	finance   finance.Repository
	audits    audit.Repository
	edges     lineage.Repository
	registry  Registry
	pricing   PriceResolver
	notifier  Notifier
	policy    Policy
	logger    zerolog.Logger
}

func NewEngine(deps EngineDeps, policy Policy, logger zerolog.Logger) *Engine {
	return &Engine{
		tx:        deps.Tx,
		receipts:  deps.Receipts,
		inventory: deps.Inventory,
		finance:   deps.Finance,
		audits:    deps.Audits,
		edges:     deps.Lineage,
		registry:  deps.Registry,
		pricing:   deps.Pricing,
		notifier:  deps.Notifier,
		policy:    policy,
		logger:    logger.With().Str("component", "automation_engine").Logger(),
	}
}

// HandleEncounterCompleted generates a draft receipt from a completed
// encounter. A given encounter completion never produces two receipts.
func (e *Engine) HandleEncounterCompleted(ctx context.Context, trig EncounterCompleted) (*receipt.Receipt, error) {
	if trig.Actor == "" {
		return nil, fmt.Errorf("actor identity is required")
	}
	if trig.EncounterID == "" || trig.PatientID == "" {
		return nil, fmt.Errorf("encounter_id and patient_id are required")
	}
	if len(trig.Items) == 0 {
		return nil, fmt.Errorf("at least one billable item is required")
	}

	// Pricing lookups stay outside the transaction: a slow or failing
	// upstream must not hold ledger locks.
	lines := make([]*receipt.LineItem, 0, len(trig.Items))
	for i, item := range trig.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("billable item %q has non-positive quantity", item.Code)
		}
		price, err := e.pricing.Resolve(ctx, item)
		if err != nil {
			e.recordFailure(ctx, audit.EventCreate, "encounter", trig.EncounterID, trig.Actor, err)
			return nil, err
		}
		lines = append(lines, &receipt.LineItem{
			Sequence:    i,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   price.UnitPrice,
			Category:    price.Category,
			SKU:         price.SKU,
		})
	}

	rec := &receipt.Receipt{
		PatientID:   trig.PatientID,
		EncounterID: trig.EncounterID,
		Status:      receipt.StatusDraft,
		CreatedBy:   trig.Actor,
		LineItems:   lines,
	}
	rec.Total = rec.ComputeTotal()

	key := TriggerKey(TriggerEncounterCompleted, trig.EncounterID, trig.Version)
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := e.registry.Register(ctx, key); err != nil {
			return err
		}
		if err := e.receipts.Create(ctx, rec); err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}
		if err := e.edges.Add(ctx, &lineage.Edge{
			SourceKind: lineage.KindEncounter, SourceID: trig.EncounterID,
			TargetKind: lineage.KindReceipt, TargetID: rec.ID.String(),
		}); err != nil {
			return fmt.Errorf("add lineage edge: %w", err)
		}
		return e.recordSuccess(ctx, audit.EventCreate, rec.ID, trig.Actor,
			fmt.Sprintf("receipt generated from encounter %s", trig.EncounterID))
	})
	if err != nil {
		err = e.classify(err)
		e.recordFailure(ctx, audit.EventCreate, "encounter", trig.EncounterID, trig.Actor, err)
		return nil, err
	}

	e.logger.Info().
		Str("receipt_id", rec.ID.String()).
		Str("encounter_id", trig.EncounterID).
		Float64("total", rec.Total).
		Msg("receipt generated")
	e.publish(ctx, events.TypeReceiptCreated, "receipt", rec.ID.String(), rec)
	return rec, nil
}

// HandlePaymentRecorded applies a payment, deducts consumed inventory
// per policy, posts the income entry, and advances the receipt state.
func (e *Engine) HandlePaymentRecorded(ctx context.Context, trig PaymentRecorded) (*receipt.Receipt, error) {
	if trig.Actor == "" {
		return nil, fmt.Errorf("actor identity is required")
	}
	if trig.Amount <= 0 {
		err := NewError(KindInvalidAmount, "payment amount must be positive, got %.2f", trig.Amount)
		e.recordFailure(ctx, audit.EventStateChange, "receipt", trig.ReceiptID.String(), trig.Actor, err)
		return nil, err
	}

	key := TriggerKey(TriggerPaymentRecorded, trig.ReceiptID.String(), trig.Version)
	var (
		rec       *receipt.Receipt
		posted    []*inventory.Transaction
		income    *finance.Transaction
		newStatus receipt.Status
	)
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := e.registry.Register(ctx, key); err != nil {
			return err
		}

		var err error
		rec, err = e.receipts.GetForUpdate(ctx, trig.ReceiptID)
		if err != nil {
			return fmt.Errorf("load receipt: %w", err)
		}
		if rec.Status != receipt.StatusDraft && rec.Status != receipt.StatusPartiallyPaid {
			return NewError(KindInvalidTransition, "cannot record payment on %s receipt", rec.Status)
		}
		if trig.Amount > rec.Outstanding()+amountEpsilon {
			return NewError(KindInvalidAmount, "payment %.2f exceeds outstanding balance %.2f",
				trig.Amount, rec.Outstanding())
		}

		firstPayment := rec.AmountCollected == 0
		newCollected := rec.AmountCollected + trig.Amount
		newStatus = receipt.StatusPartiallyPaid
		if newCollected+amountEpsilon >= rec.Total {
			newStatus = receipt.StatusPaid
		}
		if !rec.CanTransition(newStatus) {
			return NewError(KindInvalidTransition, "receipt %s cannot move from %s to %s",
				rec.ID, rec.Status, newStatus)
		}

		deduct := (e.policy.InventoryDeduction == config.DeductOnFullPayment && newStatus == receipt.StatusPaid) ||
			(e.policy.InventoryDeduction == config.DeductOnPartialPayment && firstPayment)
		if deduct {
			var err error
			posted, err = e.deductStock(ctx, rec, trig.Actor)
			if err != nil {
				return err
			}
		}

		income = &finance.Transaction{
			Type:       finance.TypeIncome,
			Amount:     trig.Amount,
			Category:   dominantCategory(rec),
			ReceiptID:  &rec.ID,
			CreatedBy:  trig.Actor,
			OccurredAt: time.Now().UTC(),
		}
		if err := e.finance.Create(ctx, income); err != nil {
			return fmt.Errorf("post income entry: %w", err)
		}
		if err := e.edges.Add(ctx, &lineage.Edge{
			SourceKind: lineage.KindReceipt, SourceID: rec.ID.String(),
			TargetKind: lineage.KindFinancialTransaction, TargetID: income.ID.String(),
		}); err != nil {
			return fmt.Errorf("add lineage edge: %w", err)
		}

		rec.Status = newStatus
		rec.AmountCollected = newCollected
		if err := e.receipts.Update(ctx, rec); err != nil {
			return fmt.Errorf("update receipt: %w", err)
		}
		return e.recordSuccess(ctx, audit.EventStateChange, rec.ID, trig.Actor,
			fmt.Sprintf("payment of %.2f via %s, status %s", trig.Amount, trig.Method, newStatus))
	})
	if err != nil {
		err = e.classify(err)
		e.recordFailure(ctx, audit.EventStateChange, "receipt", trig.ReceiptID.String(), trig.Actor, err)
		return nil, err
	}

	e.logger.Info().
		Str("receipt_id", rec.ID.String()).
		Float64("amount", trig.Amount).
		Str("status", string(rec.Status)).
		Msg("payment recorded")

	eventType := events.TypeReceiptPartiallyPaid
	if newStatus == receipt.StatusPaid {
		eventType = events.TypeReceiptPaid
	}
	e.publish(ctx, eventType, "receipt", rec.ID.String(), rec)
	for _, t := range posted {
		e.publish(ctx, events.TypeInventoryPosted, "inventory_transaction", t.ID.String(), t)
	}
	e.publish(ctx, events.TypeFinancialPosted, "financial_transaction", income.ID.String(), income)
	return rec, nil
}

// HandleVoidRequested cancels a receipt. Void is an administrative
// cancellation that writes no reversing entries, so it is rejected once
// stock has been deducted for the receipt; after fulfillment the only
// way back is a refund.
func (e *Engine) HandleVoidRequested(ctx context.Context, trig VoidRequested) (*receipt.Receipt, error) {
	if trig.Actor == "" {
		return nil, fmt.Errorf("actor identity is required")
	}

	key := TriggerKey(TriggerVoidRequested, trig.ReceiptID.String(), trig.Version)
	var rec *receipt.Receipt
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := e.registry.Register(ctx, key); err != nil {
			return err
		}
		var err error
		rec, err = e.receipts.GetForUpdate(ctx, trig.ReceiptID)
		if err != nil {
			return fmt.Errorf("load receipt: %w", err)
		}
		if !rec.CanTransition(receipt.StatusVoided) {
			return NewError(KindInvalidTransition, "cannot void %s receipt", rec.Status)
		}
		if rec.Status != receipt.StatusDraft {
			fulfilled, err := e.hasStockPostings(ctx, rec.ID)
			if err != nil {
				return err
			}
			if fulfilled {
				return NewError(KindInvalidTransition,
					"cannot void receipt %s: stock has been deducted, use a refund", rec.ID)
			}
		}
		rec.Status = receipt.StatusVoided
		if trig.Reason != "" {
			rec.VoidReason = &trig.Reason
		}
		if err := e.receipts.Update(ctx, rec); err != nil {
			return fmt.Errorf("update receipt: %w", err)
		}
		return e.recordSuccess(ctx, audit.EventStateChange, rec.ID, trig.Actor,
			"receipt voided: "+trig.Reason)
	})
	if err != nil {
		err = e.classify(err)
		e.recordFailure(ctx, audit.EventStateChange, "receipt", trig.ReceiptID.String(), trig.Actor, err)
		return nil, err
	}

	e.logger.Info().Str("receipt_id", rec.ID.String()).Msg("receipt voided")
	e.publish(ctx, events.TypeReceiptVoided, "receipt", rec.ID.String(), rec)
	return rec, nil
}

// HandleRefundRequested reverses collected income and restores stock in
// proportion to the refunded fraction.
func (e *Engine) HandleRefundRequested(ctx context.Context, trig RefundRequested) (*receipt.Receipt, error) {
	if trig.Actor == "" {
		return nil, fmt.Errorf("actor identity is required")
	}
	if trig.Amount <= 0 {
		err := NewError(KindInvalidAmount, "refund amount must be positive, got %.2f", trig.Amount)
		e.recordFailure(ctx, audit.EventStateChange, "receipt", trig.ReceiptID.String(), trig.Actor, err)
		return nil, err
	}

	key := TriggerKey(TriggerRefundRequested, trig.ReceiptID.String(), trig.Version)
	var (
		rec      *receipt.Receipt
		restored []*inventory.Transaction
		expense  *finance.Transaction
	)
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := e.registry.Register(ctx, key); err != nil {
			return err
		}
		var err error
		rec, err = e.receipts.GetForUpdate(ctx, trig.ReceiptID)
		if err != nil {
			return fmt.Errorf("load receipt: %w", err)
		}
		if !rec.CanTransition(receipt.StatusRefunded) {
			return NewError(KindInvalidTransition, "cannot refund %s receipt", rec.Status)
		}
		if trig.Amount > rec.NetCollected()+amountEpsilon {
			return NewError(KindInvalidAmount, "refund %.2f exceeds collected balance %.2f",
				trig.Amount, rec.NetCollected())
		}

		fraction := trig.Amount / rec.AmountCollected
		restored, err = e.restoreStock(ctx, rec, fraction, trig.Actor)
		if err != nil {
			return err
		}

		expense = &finance.Transaction{
			Type:       finance.TypeExpense,
			Amount:     trig.Amount,
			Category:   "refund",
			ReceiptID:  &rec.ID,
			CreatedBy:  trig.Actor,
			OccurredAt: time.Now().UTC(),
		}
		if err := e.finance.Create(ctx, expense); err != nil {
			return fmt.Errorf("post refund entry: %w", err)
		}
		if err := e.edges.Add(ctx, &lineage.Edge{
			SourceKind: lineage.KindReceipt, SourceID: rec.ID.String(),
			TargetKind: lineage.KindFinancialTransaction, TargetID: expense.ID.String(),
		}); err != nil {
			return fmt.Errorf("add lineage edge: %w", err)
		}

		rec.Status = receipt.StatusRefunded
		rec.AmountRefunded += trig.Amount
		if err := e.receipts.Update(ctx, rec); err != nil {
			return fmt.Errorf("update receipt: %w", err)
		}
		return e.recordSuccess(ctx, audit.EventStateChange, rec.ID, trig.Actor,
			fmt.Sprintf("refund of %.2f: %s", trig.Amount, trig.Reason))
	})
	if err != nil {
		err = e.classify(err)
		e.recordFailure(ctx, audit.EventStateChange, "receipt", trig.ReceiptID.String(), trig.Actor, err)
		return nil, err
	}

	e.logger.Info().
		Str("receipt_id", rec.ID.String()).
		Float64("amount", trig.Amount).
		Msg("receipt refunded")
	e.publish(ctx, events.TypeReceiptRefunded, "receipt", rec.ID.String(), rec)
	for _, t := range restored {
		e.publish(ctx, events.TypeInventoryPosted, "inventory_transaction", t.ID.String(), t)
	}
	e.publish(ctx, events.TypeFinancialPosted, "financial_transaction", expense.ID.String(), expense)
	return rec, nil
}

// deductStock posts out-transactions for every SKU-linked line item.
func (e *Engine) deductStock(ctx context.Context, rec *receipt.Receipt, actor string) ([]*inventory.Transaction, error) {
	var posted []*inventory.Transaction
	for _, li := range rec.LineItems {
		if li.SKU == nil || *li.SKU == "" {
			continue
		}
		onHand, err := e.inventory.OnHand(ctx, *li.SKU)
		if err != nil {
			return nil, fmt.Errorf("check on-hand for %s: %w", *li.SKU, err)
		}
		if onHand < li.Quantity {
			if e.policy.NegativeStock == config.NegativeStockBlock {
				return nil, NewError(KindInsufficientStock,
					"sku %s has %d on hand, need %d", *li.SKU, onHand, li.Quantity)
			}
			e.logger.Warn().
				Str("sku", *li.SKU).
				Int("on_hand", onHand).
				Int("needed", li.Quantity).
				Msg("deduction drives stock negative")
		}
		t := &inventory.Transaction{
			SKU:        *li.SKU,
			Type:       inventory.TypeOut,
			Quantity:   -li.Quantity,
			ReceiptID:  &rec.ID,
			CreatedBy:  actor,
			OccurredAt: time.Now().UTC(),
		}
		if err := e.inventory.Create(ctx, t); err != nil {
			return nil, fmt.Errorf("post stock deduction: %w", err)
		}
		if err := e.edges.Add(ctx, &lineage.Edge{
			SourceKind: lineage.KindReceipt, SourceID: rec.ID.String(),
			TargetKind: lineage.KindInventoryTransaction, TargetID: t.ID.String(),
		}); err != nil {
			return nil, fmt.Errorf("add lineage edge: %w", err)
		}
		posted = append(posted, t)
	}
	return posted, nil
}

// hasStockPostings reports whether any out-transaction has been posted
// for the receipt.
func (e *Engine) hasStockPostings(ctx context.Context, receiptID uuid.UUID) (bool, error) {
	postings, err := e.inventory.ListByReceipt(ctx, receiptID)
	if err != nil {
		return false, fmt.Errorf("list stock postings: %w", err)
	}
	for _, t := range postings {
		if t.Type == inventory.TypeOut {
			return true, nil
		}
	}
	return false, nil
}

// restoreStock posts in-transactions offsetting this receipt's earlier
// deductions, scaled by the refunded fraction.
func (e *Engine) restoreStock(ctx context.Context, rec *receipt.Receipt, fraction float64, actor string) ([]*inventory.Transaction, error) {
	previous, err := e.inventory.ListByReceipt(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("list stock postings: %w", err)
	}
	var restored []*inventory.Transaction
	for _, prior := range previous {
		if prior.Type != inventory.TypeOut {
			continue
		}
		qty := int(math.Round(fraction * float64(-prior.Quantity)))
		if qty <= 0 {
			continue
		}
		t := &inventory.Transaction{
			SKU:        prior.SKU,
			Type:       inventory.TypeIn,
			Quantity:   qty,
			ReceiptID:  &rec.ID,
			CreatedBy:  actor,
			OccurredAt: time.Now().UTC(),
		}
		if err := e.inventory.Create(ctx, t); err != nil {
			return nil, fmt.Errorf("post stock restoration: %w", err)
		}
		if err := e.edges.Add(ctx, &lineage.Edge{
			SourceKind: lineage.KindReceipt, SourceID: rec.ID.String(),
			TargetKind: lineage.KindInventoryTransaction, TargetID: t.ID.String(),
		}); err != nil {
			return nil, fmt.Errorf("add lineage edge: %w", err)
		}
		restored = append(restored, t)
	}
	return restored, nil
}

// recordSuccess writes the in-transaction audit event for a completed
// saga and links it into the lineage graph.
func (e *Engine) recordSuccess(ctx context.Context, eventType audit.EventType, receiptID uuid.UUID, actor, detail string) error {
	ev := &audit.Event{
		EventType:    eventType,
		ResourceType: "receipt",
		ResourceID:   receiptID.String(),
		Actor:        actor,
		Outcome:      audit.OutcomeSuccess,
		Detail:       detail,
		RecordedAt:   time.Now().UTC(),
	}
	if err := e.audits.Append(ctx, ev); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	if err := e.edges.Add(ctx, &lineage.Edge{
		SourceKind: lineage.KindReceipt, SourceID: receiptID.String(),
		TargetKind: lineage.KindAuditEvent, TargetID: ev.ID.String(),
	}); err != nil {
		return fmt.Errorf("add lineage edge: %w", err)
	}
	return nil
}

// recordFailure writes a failed audit event after the saga transaction
// has rolled back. Runs outside any transaction so the entry survives.
func (e *Engine) recordFailure(ctx context.Context, eventType audit.EventType, resourceType, resourceID, actor string, cause error) {
	ev := &audit.Event{
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Actor:        actor,
		Outcome:      audit.OutcomeFailed,
		Detail:       cause.Error(),
		RecordedAt:   time.Now().UTC(),
	}
	if err := e.audits.Append(ctx, ev); err != nil {
		e.logger.Error().Err(err).
			Str("resource_type", resourceType).
			Str("resource_id", resourceID).
			Msg("failed to record failure audit event")
	}
}

// classify translates store-level contention into the retryable kind.
func (e *Engine) classify(err error) error {
	if db.IsSerializationError(err) {
		return WrapError(KindStoreConflict, "store conflict", err)
	}
	return err
}

// publish sends one outbound domain event, best effort.
func (e *Engine) publish(ctx context.Context, eventType, resourceType, resourceID string, payload interface{}) {
	if e.notifier == nil {
		return
	}
	ev, err := events.NewEvent(eventType, resourceType, resourceID, payload)
	if err != nil {
		e.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to build outbound event")
		return
	}
	e.notifier.Publish(ctx, ev)
}

// dominantCategory picks the income category from the largest line item.
func dominantCategory(rec *receipt.Receipt) string {
	category := "general"
	var best float64
	for _, li := range rec.LineItems {
		if sub := li.Subtotal(); sub > best {
			best = sub
			category = li.Category
		}
	}
	if category == "" {
		category = "general"
	}
	return category
}
