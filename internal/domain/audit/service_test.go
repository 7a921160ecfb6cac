package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/billing/internal/platform/middleware"
)

// =========== Mock Repository ===========

type mockAuditRepo struct {
	store     []*Event
	appendErr error
}

func newMockAuditRepo() *mockAuditRepo {
	return &mockAuditRepo{}
}

func (m *mockAuditRepo) Append(_ context.Context, e *Event) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	e.ID = uuid.New()
	m.store = append(m.store, e)
	return nil
}

func (m *mockAuditRepo) GetByID(_ context.Context, id uuid.UUID) (*Event, error) {
	for _, e := range m.store {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockAuditRepo) ListByResource(_ context.Context, resourceType, resourceID string) ([]*Event, error) {
	var result []*Event
	for _, e := range m.store {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockAuditRepo) List(_ context.Context, limit, offset int) ([]*Event, int, error) {
	return m.store, len(m.store), nil
}

// =========== Tests ===========

func TestRecord_Success(t *testing.T) {
	repo := newMockAuditRepo()
	svc := NewService(repo)

	err := svc.Record(context.Background(), &Event{
		EventType:    EventStateChange,
		ResourceType: "receipt",
		ResourceID:   uuid.New().String(),
		Actor:        "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.store) != 1 {
		t.Fatalf("expected 1 event, got %d", len(repo.store))
	}
	e := repo.store[0]
	if e.Outcome != OutcomeSuccess {
		t.Errorf("expected default outcome success, got %s", e.Outcome)
	}
	if e.RecordedAt.IsZero() {
		t.Error("expected recorded_at to be set")
	}
}

func TestRecord_Validation(t *testing.T) {
	svc := NewService(newMockAuditRepo())
	ctx := context.Background()

	cases := []struct {
		name  string
		event *Event
	}{
		{"missing event type", &Event{ResourceType: "receipt", ResourceID: "r1", Actor: "u"}},
		{"missing resource type", &Event{EventType: EventCreate, ResourceID: "r1", Actor: "u"}},
		{"missing resource id", &Event{EventType: EventCreate, ResourceType: "receipt", Actor: "u"}},
		{"missing actor", &Event{EventType: EventCreate, ResourceType: "receipt", ResourceID: "r1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.Record(ctx, tc.event); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestListByResource_ReturnsTrailInOrder(t *testing.T) {
	repo := newMockAuditRepo()
	svc := NewService(repo)
	ctx := context.Background()

	rid := uuid.New().String()
	svc.Record(ctx, &Event{EventType: EventCreate, ResourceType: "receipt", ResourceID: rid, Actor: "u"})
	svc.Record(ctx, &Event{EventType: EventStateChange, ResourceType: "receipt", ResourceID: rid, Actor: "u"})
	svc.Record(ctx, &Event{EventType: EventCreate, ResourceType: "receipt", ResourceID: uuid.New().String(), Actor: "u"})

	items, err := svc.ListByResource(ctx, "receipt", rid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 events, got %d", len(items))
	}
	if items[0].EventType != EventCreate || items[1].EventType != EventStateChange {
		t.Errorf("expected create then state_change, got %s then %s", items[0].EventType, items[1].EventType)
	}
}

func TestAccessRecorder_MapsEntryToEvent(t *testing.T) {
	repo := newMockAuditRepo()
	svc := NewService(repo)

	rec := svc.AccessRecorder()
	err := rec.RecordAccess(middleware.AuditEntry{
		ActorID:      "user-1",
		ResourceType: "receipt",
		Action:       "read",
		IPAddress:    "10.0.0.1",
		UserAgent:    "curl/8.0",
		Path:         "/api/v1/receipts/abc",
		Method:       "GET",
		Timestamp:    time.Now(),
		StatusCode:   200,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := repo.store[0]
	if e.EventType != EventAccess {
		t.Errorf("expected access event, got %s", e.EventType)
	}
	if e.Actor != "user-1" || e.OriginAddress != "10.0.0.1" {
		t.Errorf("actor or origin not carried over: %+v", e)
	}
	if e.Outcome != OutcomeSuccess {
		t.Errorf("expected success outcome for 200, got %s", e.Outcome)
	}
}

func TestAccessRecorder_FlagsPatientLinkedReads(t *testing.T) {
	repo := newMockAuditRepo()
	svc := NewService(repo)
	rec := svc.AccessRecorder()

	cases := []struct {
		resourceType string
		path         string
		sensitive    bool
	}{
		{"receipts", "/api/v1/receipts/abc", true},
		{"receipts", "/api/v1/receipts/abc/trace", true},
		{"finance", "/api/v1/finance/report", false},
		{"inventory", "/api/v1/inventory/V1/on-hand", false},
	}
	for _, tc := range cases {
		if err := rec.RecordAccess(middleware.AuditEntry{
			ActorID:      "user-1",
			ResourceType: tc.resourceType,
			Path:         tc.path,
			Method:       "GET",
			Timestamp:    time.Now(),
			StatusCode:   200,
		}); err != nil {
			t.Fatalf("record %s: %v", tc.path, err)
		}
	}
	for i, tc := range cases {
		if repo.store[i].Sensitive != tc.sensitive {
			t.Errorf("%s: expected sensitive=%v, got %v", tc.path, tc.sensitive, repo.store[i].Sensitive)
		}
	}
}

func TestAccessRecorder_FailedStatus(t *testing.T) {
	repo := newMockAuditRepo()
	svc := NewService(repo)

	rec := svc.AccessRecorder()
	rec.RecordAccess(middleware.AuditEntry{
		ActorID:      "user-1",
		ResourceType: "receipt",
		Path:         "/api/v1/receipts/abc",
		Method:       "GET",
		Timestamp:    time.Now(),
		StatusCode:   403,
	})
	if repo.store[0].Outcome != OutcomeFailed {
		t.Errorf("expected failed outcome for 403, got %s", repo.store[0].Outcome)
	}
}

func TestAccessRecorder_PropagatesStoreError(t *testing.T) {
	repo := newMockAuditRepo()
	repo.appendErr = fmt.Errorf("db down")
	svc := NewService(repo)

	rec := svc.AccessRecorder()
	err := rec.RecordAccess(middleware.AuditEntry{
		ActorID:      "user-1",
		ResourceType: "receipt",
		Path:         "/api/v1/receipts/abc",
		Method:       "GET",
		Timestamp:    time.Now(),
		StatusCode:   200,
	})
	if err == nil {
		t.Error("expected store error to propagate")
	}
}
