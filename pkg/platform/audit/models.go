package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events with legal or regulatory significance.
	// They are written fail-closed inside the business transaction.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine lifecycle activity.
	CategoryOperations EventCategory = "operations"
)

// Action names an audited action.
type Action string

const (
	ActionCEDataExported      Action = "CE_DATA_EXPORTED"
	ActionCEAssessmentCreated Action = "CE_ASSESSMENT_CREATED"
	ActionCEEventCreated      Action = "CE_EVENT_CREATED"
	ActionCEImportCompleted   Action = "CE_IMPORT_COMPLETED"
	ActionVspExportCreated    Action = "VSP_EXPORT_CREATED"
	ActionVspExportApproved   Action = "VSP_EXPORT_APPROVED"
	ActionVspExportRevoked    Action = "VSP_EXPORT_REVOKED"
	ActionVspExportExpired    Action = "VSP_EXPORT_EXPIRED"
	ActionVspExportPurged     Action = "VSP_EXPORT_PURGED"
)

var actionCategories = map[Action]EventCategory{
	ActionCEDataExported:      CategoryCompliance,
	ActionCEAssessmentCreated: CategoryCompliance,
	ActionCEEventCreated:      CategoryCompliance,
	ActionVspExportCreated:    CategoryCompliance,
	ActionVspExportApproved:   CategoryCompliance,
	ActionVspExportRevoked:    CategoryCompliance,

	ActionCEImportCompleted: CategoryOperations,
	ActionVspExportExpired:  CategoryOperations,
	ActionVspExportPurged:   CategoryOperations,
}

// Category returns the category for a. Unknown actions are operational.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is one audit record. Details never carry client identifiers; only
// hashes and record ids.
type Event struct {
	ID           uuid.UUID
	Category     EventCategory
	Timestamp    time.Time
	Action       Action
	ResourceType string
	ResourceID   string
	ActorID      string
	RequestID    string
	Details      map[string]string
}

// Store persists audit events. Postgres stores join the caller's
// transaction.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// OutboxEntry is an outbox row awaiting relay to the audit topic.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// PublishFunc publishes entries and returns the ids that were delivered.
type PublishFunc func(ctx context.Context, entries []OutboxEntry) ([]uuid.UUID, error)
