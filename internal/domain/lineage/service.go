package lineage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// maxTraceDepth bounds recursion in case of malformed edge data.
const maxTraceDepth = 16

// Trace is the full provenance picture for one receipt: the records it
// was derived from and the tree of everything derived from it.
type Trace struct {
	Origins []*Node `json:"origins"`
	Root    *Node   `json:"root"`
}

type Service struct {
	edges Repository
}

func NewService(r Repository) *Service {
	return &Service{edges: r}
}

// Record writes one edge. Both ends must be identified.
func (s *Service) Record(ctx context.Context, e *Edge) error {
	if e.SourceKind == "" || e.SourceID == "" || e.TargetKind == "" || e.TargetID == "" {
		return fmt.Errorf("both edge endpoints are required")
	}
	return s.edges.Add(ctx, e)
}

// Trace walks the lineage graph outward from a receipt.
func (s *Service) Trace(ctx context.Context, receiptID uuid.UUID) (*Trace, error) {
	id := receiptID.String()

	root, err := s.expand(ctx, KindReceipt, id, 0, map[string]bool{})
	if err != nil {
		return nil, err
	}

	upstream, err := s.edges.ListByTarget(ctx, KindReceipt, id)
	if err != nil {
		return nil, err
	}
	var origins []*Node
	for _, e := range upstream {
		origins = append(origins, &Node{Kind: e.SourceKind, ID: e.SourceID})
	}

	return &Trace{Origins: origins, Root: root}, nil
}

func (s *Service) expand(ctx context.Context, kind Kind, id string, depth int, seen map[string]bool) (*Node, error) {
	node := &Node{Kind: kind, ID: id}
	key := string(kind) + ":" + id
	if depth >= maxTraceDepth || seen[key] {
		return node, nil
	}
	seen[key] = true

	edges, err := s.edges.ListBySource(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		child, err := s.expand(ctx, e.TargetKind, e.TargetID, depth+1, seen)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}
