package domain

import "time"

// RelatedTo is a weak (model, id) reference used only for lookup
type RelatedTo struct {
	Model string `json:"model" bson:"model"`
	ID    string `json:"id" bson:"id"`
}

// Notification is a message for a single recipient
type Notification struct {
	ID        string     `json:"id" bson:"_id"`
	UserID    string     `json:"userId" bson:"userId"`
	Title     string     `json:"title" bson:"title"`
	Message   string     `json:"message" bson:"message"`
	Type      string     `json:"type" bson:"type"`
	Read      bool       `json:"read" bson:"read"`
	RelatedTo *RelatedTo `json:"relatedTo,omitempty" bson:"relatedTo,omitempty"`
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
}

// Notification categories
const (
	NotificationRepairCreated  = "repair_created"
	NotificationIterationAdded = "iteration_added"
	NotificationAssigned       = "repair_assigned"
	NotificationStatusChanged  = "status_changed"
)

// Repair event types written to the outbox
const (
	EventRepairCreated  = "RepairCreated"
	EventIterationAdded = "IterationAdded"
	EventRepairAssigned = "RepairAssigned"
	EventRepairUpdated  = "RepairUpdated"
	EventRepairDeleted  = "RepairDeleted"
)

// RepairEvent is the snapshot of a repair request carried by an outbox event
type RepairEvent struct {
	RepairID   string    `bson:"repairId" json:"repairId"`
	UserID     string    `bson:"userId" json:"userId"`
	AssignedTo string    `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	WorkshopID string    `bson:"workshopId,omitempty" json:"workshopId,omitempty"`
	Status     string    `bson:"status" json:"status"`
	TotalCost  string    `bson:"totalCost" json:"totalCost"`
	OccurredAt time.Time `bson:"occurredAt" json:"occurredAt"`
}

// NewRepairEvent snapshots r at the given time
func NewRepairEvent(r *RepairRequest, at time.Time) RepairEvent {
	return RepairEvent{
		RepairID:   r.ID,
		UserID:     r.UserID,
		AssignedTo: r.AssignedTo,
		WorkshopID: r.WorkshopID,
		Status:     string(r.Status),
		TotalCost:  r.TotalCost.String(),
		OccurredAt: at,
	}
}

// OutboxEvent represents an event in the outbox collection
type OutboxEvent struct {
	ID          string      `bson:"_id" json:"id"`
	EventType   string      `bson:"event_type" json:"event_type"`
	Event       RepairEvent `bson:"event" json:"event"`
	CreatedAt   time.Time   `bson:"created_at" json:"created_at"`
	Processed   bool        `bson:"processed" json:"processed"`
	ProcessedAt *time.Time  `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}
