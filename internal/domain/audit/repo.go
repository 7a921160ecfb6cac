package audit

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines append-only storage for audit events.
type Repository interface {
	Append(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]*Event, error)
	List(ctx context.Context, limit, offset int) ([]*Event, int, error)
}
