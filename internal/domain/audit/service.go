package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinicore/billing/internal/platform/middleware"
)

type Service struct {
	events Repository
}

func NewService(r Repository) *Service {
	return &Service{events: r}
}

// Record appends a single event to the trail.
func (s *Service) Record(ctx context.Context, e *Event) error {
	if e.EventType == "" || e.ResourceType == "" || e.ResourceID == "" {
		return fmt.Errorf("event_type, resource_type and resource_id are required")
	}
	if e.Actor == "" {
		return fmt.Errorf("actor is required")
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	return s.events.Append(ctx, e)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	return s.events.GetByID(ctx, id)
}

func (s *Service) ListByResource(ctx context.Context, resourceType, resourceID string) ([]*Event, error) {
	return s.events.ListByResource(ctx, resourceType, resourceID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Event, int, error) {
	return s.events.List(ctx, limit, offset)
}

// sensitiveResources are the read surfaces exposing patient-linked
// billing data. Access to them is flagged so the trail can be filtered
// for disclosure reviews.
var sensitiveResources = map[string]bool{
	"receipts": true,
}

// AccessRecorder adapts the service to the HTTP audit middleware so
// resource reads land in the same trail as ledger mutations.
func (s *Service) AccessRecorder() middleware.AuditRecorder {
	return middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		e := &Event{
			EventType:     EventAccess,
			ResourceType:  entry.ResourceType,
			ResourceID:    entry.Path,
			Actor:         entry.ActorID,
			Outcome:       OutcomeSuccess,
			Detail:        entry.Method + " " + entry.Path,
			OriginAddress: entry.IPAddress,
			UserAgent:     entry.UserAgent,
			Sensitive:     sensitiveResources[entry.ResourceType],
			RecordedAt:    entry.Timestamp,
		}
		if entry.StatusCode >= 400 {
			e.Outcome = OutcomeFailed
		}
		if err := s.events.Append(context.Background(), e); err != nil {
			log.Warn().Err(err).Str("path", entry.Path).Msg("failed to persist access audit event")
			return err
		}
		return nil
	})
}
