package lineage

import "context"

// Repository defines append-only storage for lineage edges.
type Repository interface {
	Add(ctx context.Context, e *Edge) error
	ListBySource(ctx context.Context, sourceKind Kind, sourceID string) ([]*Edge, error)
	ListByTarget(ctx context.Context, targetKind Kind, targetID string) ([]*Edge, error)
}
