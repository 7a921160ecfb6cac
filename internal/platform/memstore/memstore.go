// Package memstore provides an in-memory ledger store with the same
// transactional contract as the Postgres-backed repositories: writes made
// through WithTx commit together or are discarded together, and sagas
// against the store serialize.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/billing/internal/automation"
	"github.com/clinicore/billing/internal/domain/audit"
	"github.com/clinicore/billing/internal/domain/finance"
	"github.com/clinicore/billing/internal/domain/inventory"
	"github.com/clinicore/billing/internal/domain/lineage"
	"github.com/clinicore/billing/internal/domain/receipt"
)

type txKey struct{}

// Store holds every record kind behind one mutex. WithTx takes the lock
// for the whole saga and restores a snapshot on error, which gives the
// same observable behavior as a rolled-back database transaction.
type Store struct {
	mu        sync.Mutex
	receipts  map[uuid.UUID]*receipt.Receipt
	inventory []*inventory.Transaction
	finance   []*finance.Transaction
	audits    []*audit.Event
	edges     []*lineage.Edge
	triggers  map[string]bool
}

func New() *Store {
	return &Store{
		receipts: make(map[uuid.UUID]*receipt.Receipt),
		triggers: make(map[string]bool),
	}
}

type snapshot struct {
	receipts  map[uuid.UUID]*receipt.Receipt
	inventory []*inventory.Transaction
	finance   []*finance.Transaction
	audits    []*audit.Event
	edges     []*lineage.Edge
	triggers  map[string]bool
}

// Stored values are never mutated in place (getters return copies and
// setters store copies), so a snapshot only needs to copy containers.
func (s *Store) snapshot() snapshot {
	receipts := make(map[uuid.UUID]*receipt.Receipt, len(s.receipts))
	for k, v := range s.receipts {
		receipts[k] = v
	}
	triggers := make(map[string]bool, len(s.triggers))
	for k := range s.triggers {
		triggers[k] = true
	}
	return snapshot{
		receipts:  receipts,
		inventory: s.inventory[:len(s.inventory):len(s.inventory)],
		finance:   s.finance[:len(s.finance):len(s.finance)],
		audits:    s.audits[:len(s.audits):len(s.audits)],
		edges:     s.edges[:len(s.edges):len(s.edges)],
		triggers:  triggers,
	}
}

func (s *Store) restore(snap snapshot) {
	s.receipts = snap.receipts
	s.inventory = snap.inventory
	s.finance = snap.finance
	s.audits = snap.audits
	s.edges = snap.edges
	s.triggers = snap.triggers
}

// WithTx implements db.TxRunner.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// lock acquires the store mutex unless the context already holds it
// through WithTx.
func (s *Store) lock(ctx context.Context) func() {
	if held, _ := ctx.Value(txKey{}).(bool); held {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Receipts() receipt.Repository    { return &receiptStore{s} }
func (s *Store) Inventory() inventory.Repository { return &inventoryStore{s} }
func (s *Store) Finance() finance.Repository     { return &financeStore{s} }
func (s *Store) Audits() audit.Repository        { return &auditStore{s} }
func (s *Store) Lineage() lineage.Repository     { return &lineageStore{s} }
func (s *Store) Registry() automation.Registry   { return &registryStore{s} }

// =========== Receipts ===========

type receiptStore struct{ s *Store }

func copyReceipt(r *receipt.Receipt) *receipt.Receipt {
	c := *r
	c.LineItems = make([]*receipt.LineItem, len(r.LineItems))
	for i, li := range r.LineItems {
		item := *li
		c.LineItems[i] = &item
	}
	return &c
}

func (rs *receiptStore) Create(ctx context.Context, r *receipt.Receipt) error {
	defer rs.s.lock(ctx)()
	r.ID = uuid.New()
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	for i, li := range r.LineItems {
		li.ID = uuid.New()
		li.ReceiptID = r.ID
		li.Sequence = i
	}
	rs.s.receipts[r.ID] = copyReceipt(r)
	return nil
}

func (rs *receiptStore) GetByID(ctx context.Context, id uuid.UUID) (*receipt.Receipt, error) {
	defer rs.s.lock(ctx)()
	r, ok := rs.s.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s not found", id)
	}
	return copyReceipt(r), nil
}

// GetForUpdate behaves like GetByID; serialization is provided by the
// store-wide lock held for the whole transaction.
func (rs *receiptStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*receipt.Receipt, error) {
	return rs.GetByID(ctx, id)
}

func (rs *receiptStore) GetByEncounter(ctx context.Context, encounterID string) (*receipt.Receipt, error) {
	defer rs.s.lock(ctx)()
	for _, r := range rs.s.receipts {
		if r.EncounterID == encounterID {
			return copyReceipt(r), nil
		}
	}
	return nil, fmt.Errorf("no receipt for encounter %s", encounterID)
}

func (rs *receiptStore) Update(ctx context.Context, r *receipt.Receipt) error {
	defer rs.s.lock(ctx)()
	if _, ok := rs.s.receipts[r.ID]; !ok {
		return fmt.Errorf("receipt %s not found", r.ID)
	}
	r.UpdatedAt = time.Now().UTC()
	rs.s.receipts[r.ID] = copyReceipt(r)
	return nil
}

func (rs *receiptStore) List(ctx context.Context, limit, offset int) ([]*receipt.Receipt, int, error) {
	defer rs.s.lock(ctx)()
	var all []*receipt.Receipt
	for _, r := range rs.s.receipts {
		all = append(all, copyReceipt(r))
	}
	return paginate(all, limit, offset), len(all), nil
}

func (rs *receiptStore) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*receipt.Receipt, int, error) {
	defer rs.s.lock(ctx)()
	var matched []*receipt.Receipt
	for _, r := range rs.s.receipts {
		if v, ok := params["patient"]; ok && r.PatientID != v {
			continue
		}
		if v, ok := params["status"]; ok && string(r.Status) != v {
			continue
		}
		if v, ok := params["encounter"]; ok && r.EncounterID != v {
			continue
		}
		matched = append(matched, copyReceipt(r))
	}
	return paginate(matched, limit, offset), len(matched), nil
}

// =========== Inventory ===========

type inventoryStore struct{ s *Store }

func (is *inventoryStore) Create(ctx context.Context, t *inventory.Transaction) error {
	defer is.s.lock(ctx)()
	t.ID = uuid.New()
	t.CreatedAt = time.Now().UTC()
	c := *t
	is.s.inventory = append(is.s.inventory, &c)
	return nil
}

func (is *inventoryStore) GetByID(ctx context.Context, id uuid.UUID) (*inventory.Transaction, error) {
	defer is.s.lock(ctx)()
	for _, t := range is.s.inventory {
		if t.ID == id {
			c := *t
			return &c, nil
		}
	}
	return nil, fmt.Errorf("inventory transaction %s not found", id)
}

func (is *inventoryStore) ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*inventory.Transaction, error) {
	defer is.s.lock(ctx)()
	var result []*inventory.Transaction
	for _, t := range is.s.inventory {
		if t.ReceiptID != nil && *t.ReceiptID == receiptID {
			c := *t
			result = append(result, &c)
		}
	}
	return result, nil
}

func (is *inventoryStore) ListBySKU(ctx context.Context, sku string, limit, offset int) ([]*inventory.Transaction, int, error) {
	defer is.s.lock(ctx)()
	var matched []*inventory.Transaction
	for _, t := range is.s.inventory {
		if t.SKU == sku {
			c := *t
			matched = append(matched, &c)
		}
	}
	return paginate(matched, limit, offset), len(matched), nil
}

func (is *inventoryStore) List(ctx context.Context, limit, offset int) ([]*inventory.Transaction, int, error) {
	defer is.s.lock(ctx)()
	all := make([]*inventory.Transaction, 0, len(is.s.inventory))
	for _, t := range is.s.inventory {
		c := *t
		all = append(all, &c)
	}
	return paginate(all, limit, offset), len(all), nil
}

func (is *inventoryStore) OnHand(ctx context.Context, sku string) (int, error) {
	defer is.s.lock(ctx)()
	sum := 0
	for _, t := range is.s.inventory {
		if t.SKU == sku {
			sum += t.Quantity
		}
	}
	return sum, nil
}

// =========== Finance ===========

type financeStore struct{ s *Store }

func (fs *financeStore) Create(ctx context.Context, t *finance.Transaction) error {
	defer fs.s.lock(ctx)()
	t.ID = uuid.New()
	t.CreatedAt = time.Now().UTC()
	c := *t
	fs.s.finance = append(fs.s.finance, &c)
	return nil
}

func (fs *financeStore) GetByID(ctx context.Context, id uuid.UUID) (*finance.Transaction, error) {
	defer fs.s.lock(ctx)()
	for _, t := range fs.s.finance {
		if t.ID == id {
			c := *t
			return &c, nil
		}
	}
	return nil, fmt.Errorf("financial transaction %s not found", id)
}

func (fs *financeStore) ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*finance.Transaction, error) {
	defer fs.s.lock(ctx)()
	var result []*finance.Transaction
	for _, t := range fs.s.finance {
		if t.ReceiptID != nil && *t.ReceiptID == receiptID {
			c := *t
			result = append(result, &c)
		}
	}
	return result, nil
}

func (fs *financeStore) List(ctx context.Context, limit, offset int) ([]*finance.Transaction, int, error) {
	defer fs.s.lock(ctx)()
	all := make([]*finance.Transaction, 0, len(fs.s.finance))
	for _, t := range fs.s.finance {
		c := *t
		all = append(all, &c)
	}
	return paginate(all, limit, offset), len(all), nil
}

func (fs *financeStore) SumByCategory(ctx context.Context, from, to time.Time) ([]finance.CategorySum, error) {
	defer fs.s.lock(ctx)()
	type key struct {
		typ      finance.TransactionType
		category string
	}
	grouped := map[key]*finance.CategorySum{}
	var order []key
	for _, t := range fs.s.finance {
		if t.OccurredAt.Before(from) || !t.OccurredAt.Before(to) {
			continue
		}
		k := key{t.Type, t.Category}
		sum, ok := grouped[k]
		if !ok {
			sum = &finance.CategorySum{Type: t.Type, Category: t.Category}
			grouped[k] = sum
			order = append(order, k)
		}
		sum.Total += t.Amount
		sum.Count++
	}
	var sums []finance.CategorySum
	for _, k := range order {
		sums = append(sums, *grouped[k])
	}
	return sums, nil
}

// =========== Audit ===========

type auditStore struct{ s *Store }

func (as *auditStore) Append(ctx context.Context, e *audit.Event) error {
	defer as.s.lock(ctx)()
	e.ID = uuid.New()
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	c := *e
	as.s.audits = append(as.s.audits, &c)
	return nil
}

func (as *auditStore) GetByID(ctx context.Context, id uuid.UUID) (*audit.Event, error) {
	defer as.s.lock(ctx)()
	for _, e := range as.s.audits {
		if e.ID == id {
			c := *e
			return &c, nil
		}
	}
	return nil, fmt.Errorf("audit event %s not found", id)
}

func (as *auditStore) ListByResource(ctx context.Context, resourceType, resourceID string) ([]*audit.Event, error) {
	defer as.s.lock(ctx)()
	var result []*audit.Event
	for _, e := range as.s.audits {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			c := *e
			result = append(result, &c)
		}
	}
	return result, nil
}

func (as *auditStore) List(ctx context.Context, limit, offset int) ([]*audit.Event, int, error) {
	defer as.s.lock(ctx)()
	all := make([]*audit.Event, 0, len(as.s.audits))
	for _, e := range as.s.audits {
		c := *e
		all = append(all, &c)
	}
	return paginate(all, limit, offset), len(all), nil
}

// =========== Lineage ===========

type lineageStore struct{ s *Store }

func (ls *lineageStore) Add(ctx context.Context, e *lineage.Edge) error {
	defer ls.s.lock(ctx)()
	e.CreatedAt = time.Now().UTC()
	c := *e
	ls.s.edges = append(ls.s.edges, &c)
	return nil
}

func (ls *lineageStore) ListBySource(ctx context.Context, kind lineage.Kind, id string) ([]*lineage.Edge, error) {
	defer ls.s.lock(ctx)()
	var result []*lineage.Edge
	for _, e := range ls.s.edges {
		if e.SourceKind == kind && e.SourceID == id {
			c := *e
			result = append(result, &c)
		}
	}
	return result, nil
}

func (ls *lineageStore) ListByTarget(ctx context.Context, kind lineage.Kind, id string) ([]*lineage.Edge, error) {
	defer ls.s.lock(ctx)()
	var result []*lineage.Edge
	for _, e := range ls.s.edges {
		if e.TargetKind == kind && e.TargetID == id {
			c := *e
			result = append(result, &c)
		}
	}
	return result, nil
}

// =========== Registry ===========

type registryStore struct{ s *Store }

func (rg *registryStore) Register(ctx context.Context, key string) error {
	defer rg.s.lock(ctx)()
	if key == "" || strings.Count(key, ":") < 2 {
		return fmt.Errorf("malformed trigger key %q", key)
	}
	if rg.s.triggers[key] {
		return automation.NewError(automation.KindDuplicateTrigger, "trigger %q already processed", key)
	}
	rg.s.triggers[key] = true
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
