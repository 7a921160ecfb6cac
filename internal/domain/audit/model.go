package audit

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCreate      EventType = "create"
	EventUpdate      EventType = "update"
	EventStateChange EventType = "state_change"
	EventAccess      EventType = "access"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Event is one entry in the audit trail. Entries are immutable: the
// repository exposes no update or delete.
type Event struct {
	ID            uuid.UUID `json:"id"`
	EventType     EventType `json:"event_type"`
	ResourceType  string    `json:"resource_type"`
	ResourceID    string    `json:"resource_id"`
	Actor         string    `json:"actor"`
	Outcome       Outcome   `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
	OriginAddress string    `json:"origin_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Sensitive     bool      `json:"sensitive"`
	RecordedAt    time.Time `json:"recorded_at"`
}
