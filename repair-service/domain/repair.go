package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RepairStatus is the top-level state of a repair request
type RepairStatus string

const (
	StatusPending    RepairStatus = "pending"
	StatusAssigned   RepairStatus = "assigned"
	StatusInProgress RepairStatus = "in-progress"
	StatusCompleted  RepairStatus = "completed"
	StatusCancelled  RepairStatus = "cancelled"
)

// IterationStatus is the state of a single unit of work
type IterationStatus string

const (
	IterationPending    IterationStatus = "pending"
	IterationInProgress IterationStatus = "in-progress"
	IterationCompleted  IterationStatus = "completed"
	IterationCancelled  IterationStatus = "cancelled"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Part is a single line of the parts breakdown of an iteration
type Part struct {
	Name     string          `bson:"name" json:"name"`
	Price    decimal.Decimal `bson:"price" json:"price"`
	Quantity decimal.Decimal `bson:"quantity" json:"quantity"`
}

// IterationCost is the cost breakdown of an iteration
type IterationCost struct {
	Parts []Part          `bson:"parts,omitempty" json:"parts,omitempty"`
	Labor decimal.Decimal `bson:"labor" json:"labor"`
}

// Iteration is one unit of work performed by a mechanic. It is embedded in
// the repair request and never addressed on its own.
type Iteration struct {
	Seq           int             `bson:"seq" json:"seq"`
	Description   string          `bson:"description" json:"description"`
	MechanicNotes string          `bson:"mechanicNotes,omitempty" json:"mechanicNotes,omitempty"`
	Status        IterationStatus `bson:"status" json:"status"`
	Cost          *IterationCost  `bson:"cost,omitempty" json:"cost,omitempty"`
	CompletedAt   *time.Time      `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	MechanicID    string          `bson:"mechanicId" json:"mechanicId"`
	Images        []string        `bson:"images,omitempty" json:"images,omitempty"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
}

// RepairRequest is the aggregate root for a customer's service request
type RepairRequest struct {
	ID                      string          `bson:"_id,omitempty" json:"id"`
	CarID                   string          `bson:"carId" json:"carId"`
	UserID                  string          `bson:"userId" json:"userId"`
	WorkshopID              string          `bson:"workshopId,omitempty" json:"workshopId,omitempty"`
	AssignedTo              string          `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	Title                   string          `bson:"title" json:"title"`
	Description             string          `bson:"description" json:"description"`
	ServiceType             string          `bson:"serviceType,omitempty" json:"serviceType,omitempty"`
	Priority                Priority        `bson:"priority" json:"priority"`
	Status                  RepairStatus    `bson:"status" json:"status"`
	Iterations              []Iteration     `bson:"iterations" json:"iterations"`
	TotalCost               decimal.Decimal `bson:"totalCost" json:"totalCost"`
	RequestedDate           *time.Time      `bson:"requestedDate,omitempty" json:"requestedDate,omitempty"`
	EstimatedCompletionDate *time.Time      `bson:"estimatedCompletionDate,omitempty" json:"estimatedCompletionDate,omitempty"`
	ActualCompletionDate    *time.Time      `bson:"actualCompletionDate,omitempty" json:"actualCompletionDate,omitempty"`
	Version                 int64           `bson:"version" json:"version"`
	CreatedAt               time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt               time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// RepairFilter narrows a repair listing. Scope comes from the access policy,
// Status from the caller.
type RepairFilter struct {
	Scope  ListScope
	Status RepairStatus
}
