package models

import (
	"encoding/json"
	"time"
)

// OperationType is the kind of queued mutation.
type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

// Valid reports whether t is a known operation type.
func (t OperationType) Valid() bool {
	switch t {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// SyncOperation is one pending mutation. ID is assigned by the queue and
// grows with enqueue order.
type SyncOperation struct {
	ID         int64           `json:"id"`
	Type       OperationType   `json:"type"`
	EntityType EntityKind      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	TripID     string          `json:"trip_id"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retry_count"`
}

// DraftReason tells why a draft exists.
type DraftReason string

const (
	// DraftLocal is an unsaved local edit.
	DraftLocal DraftReason = "draft"
	// DraftConflict holds a queued change the server superseded.
	DraftConflict DraftReason = "conflict"
	// DraftRejected holds a queued change the server refused.
	DraftRejected DraftReason = "rejected"
)

// Draft is a locally held version of an entity that is not (or no longer)
// queued for sync.
type Draft struct {
	ID         string          `json:"id"`
	TripID     string          `json:"trip_id"`
	EntityType EntityKind      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	Reason     DraftReason     `json:"reason"`
	Detail     string          `json:"detail,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
